package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const GeminiOpenAICompatBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// GeminiProvider implements Google Gemini's OpenAI-compatible endpoint.
type GeminiProvider struct{}

func init() {
	Register(&GeminiProvider{})
	RegisterURLHint("generativelanguage.googleapis.com", ProviderGemini)
}

func (p *GeminiProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderGemini,
		DisplayName: "Google Gemini",
		Description: "gemini-2.5-flash, gemini-2.5-pro, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: GeminiOpenAICompatBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
		},
		RequiresAuth: true,
	}
}

func (p *GeminiProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for Google Gemini provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
