package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

// GenericProvider is the fallback OpenAI-compatible adapter for any
// user-supplied base URL that does not match a known hosted endpoint
// (custom deployments, Ollama, local gateways).
type GenericProvider struct{}

func init() {
	Register(&GenericProvider{})
}

func (p *GenericProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderGeneric,
		DisplayName: "Custom (OpenAI-compatible)",
		Description: "Generic OpenAI-compatible API endpoint",
		DefaultURLs: map[types.ModelType]string{},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeEmbedding,
		},
		RequiresAuth: false,
	}
}

func (p *GenericProvider) ValidateConfig(config *Config) error {
	if config.BaseURL == "" {
		return fmt.Errorf("base URL is required for generic provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
