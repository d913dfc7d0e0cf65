package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const DeepSeekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekProvider implements the DeepSeek chat API.
type DeepSeekProvider struct{}

func init() {
	Register(&DeepSeekProvider{})
	RegisterURLHint("api.deepseek.com", ProviderDeepSeek)
}

func (p *DeepSeekProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderDeepSeek,
		DisplayName: "DeepSeek",
		Description: "deepseek-chat, deepseek-reasoner, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: DeepSeekBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
		},
		RequiresAuth: true,
	}
}

func (p *DeepSeekProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for DeepSeek provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
