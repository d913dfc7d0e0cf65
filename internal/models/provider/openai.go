package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const OpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider is the reference OpenAI-compatible backend.
type OpenAIProvider struct{}

func init() {
	Register(&OpenAIProvider{})
	RegisterURLHint("api.openai.com", ProviderOpenAI)
}

func (p *OpenAIProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderOpenAI,
		DisplayName: "OpenAI",
		Description: "gpt-4o-mini, text-embedding-3-small, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: OpenAIBaseURL,
			types.ModelTypeEmbedding:   OpenAIBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeEmbedding,
		},
		RequiresAuth: true,
	}
}

func (p *OpenAIProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for OpenAI provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
