package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider implements the OpenRouter multi-model gateway.
type OpenRouterProvider struct{}

func init() {
	Register(&OpenRouterProvider{})
	RegisterURLHint("openrouter.ai", ProviderOpenRouter)
}

func (p *OpenRouterProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderOpenRouter,
		DisplayName: "OpenRouter",
		Description: "openai/gpt-4o-mini, anthropic/claude-3.5-sonnet, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: OpenRouterBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
		},
		RequiresAuth: true,
	}
}

func (p *OpenRouterProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for OpenRouter provider")
	}
	return nil
}
