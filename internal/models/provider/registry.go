// Package provider implements a self-registering registry of OpenAI-compatible
// (and Ollama-local) backends for the LLM client, covering the two model
// types this service runs: chat and embedding.
package provider

import (
	"sort"
	"strings"
	"sync"

	"github.com/marginalia-labs/marginalia/internal/types"
)

// ProviderName identifies one registered backend.
type ProviderName string

const (
	ProviderOpenAI      ProviderName = "openai"
	ProviderGeneric     ProviderName = "generic"
	ProviderDeepSeek    ProviderName = "deepseek"
	ProviderAliyun      ProviderName = "aliyun"
	ProviderGemini      ProviderName = "gemini"
	ProviderVolcengine  ProviderName = "volcengine"
	ProviderHunyuan     ProviderName = "hunyuan"
	ProviderMiniMax     ProviderName = "minimax"
	ProviderMimo        ProviderName = "mimo"
	ProviderOpenRouter  ProviderName = "openrouter"
	ProviderSiliconFlow ProviderName = "siliconflow"
	ProviderJina        ProviderName = "jina"
	ProviderOllama      ProviderName = "ollama"
)

// Config is the per-model configuration a provider validates before use.
type Config struct {
	APIKey    string
	BaseURL   string
	ModelName string
}

// ProviderInfo is the static metadata a provider exposes about itself.
type ProviderInfo struct {
	Name         ProviderName
	DisplayName  string
	Description  string
	DefaultURLs  map[types.ModelType]string
	ModelTypes   []types.ModelType
	RequiresAuth bool
}

// GetDefaultURL returns the hosted base URL for a model type, or "" if the
// provider does not offer that model type.
func (i ProviderInfo) GetDefaultURL(mt types.ModelType) string {
	return i.DefaultURLs[mt]
}

// Provider is implemented by every OpenAI-compatible backend adapter.
type Provider interface {
	Info() ProviderInfo
	ValidateConfig(config *Config) error
}

var (
	mu       sync.RWMutex
	registry = map[ProviderName]Provider{}
	// urlHints maps a substring of a base URL to the provider it identifies,
	// checked in registration order by DetectProvider.
	urlHints []urlHint
)

type urlHint struct {
	substr string
	name   ProviderName
}

// Register adds a provider to the process-wide registry. Called from each
// provider file's init().
func Register(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Info().Name] = p
}

// RegisterURLHint associates a base-URL substring with a provider name for
// DetectProvider. Providers with a recognizable hosted endpoint call this
// from init() alongside Register.
func RegisterURLHint(substr string, name ProviderName) {
	mu.Lock()
	defer mu.Unlock()
	urlHints = append(urlHints, urlHint{substr: substr, name: name})
}

// Get returns the provider registered under name, if any.
func Get(name ProviderName) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// GetOrDefault returns the named provider, falling back to the generic
// OpenAI-compatible adapter when name is unknown.
func GetOrDefault(name ProviderName) Provider {
	if p, ok := Get(name); ok {
		return p
	}
	p, _ := Get(ProviderGeneric)
	return p
}

// List returns all registered providers, ordered by name for stable output.
func List() []Provider {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Provider, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info().Name < out[j].Info().Name })
	return out
}

// ListByModelType returns the info of every registered provider that
// supports the given model type, ordered by name.
func ListByModelType(mt types.ModelType) []ProviderInfo {
	var out []ProviderInfo
	for _, p := range List() {
		info := p.Info()
		for _, t := range info.ModelTypes {
			if t == mt {
				out = append(out, info)
				break
			}
		}
	}
	return out
}

// DetectProvider sniffs a configured base URL against known hosted endpoints,
// falling back to ProviderGeneric for anything unrecognized (custom or local).
func DetectProvider(baseURL string) ProviderName {
	lower := strings.ToLower(baseURL)
	mu.RLock()
	defer mu.RUnlock()
	for _, hint := range urlHints {
		if strings.Contains(lower, hint.substr) {
			return hint.name
		}
	}
	return ProviderGeneric
}
