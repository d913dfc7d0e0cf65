package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const (
	MiniMaxBaseURL   = "https://api.minimax.io/v1"
	MiniMaxCNBaseURL = "https://api.minimaxi.com/v1"
)

// MiniMaxProvider implements MiniMax's OpenAI-compatible chat API.
type MiniMaxProvider struct{}

func init() {
	Register(&MiniMaxProvider{})
	RegisterURLHint("api.minimaxi.com", ProviderMiniMax)
	RegisterURLHint("api.minimax.io", ProviderMiniMax)
}

func (p *MiniMaxProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderMiniMax,
		DisplayName: "MiniMax",
		Description: "MiniMax-Text-01, abab6.5s, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: MiniMaxCNBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
		},
		RequiresAuth: true,
	}
}

func (p *MiniMaxProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for MiniMax provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
