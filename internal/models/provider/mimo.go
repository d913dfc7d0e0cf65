package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const MimoBaseURL = "https://api.xiaomimimo.com/v1"

// MimoProvider implements Xiaomi MiMo's OpenAI-compatible chat API.
type MimoProvider struct{}

func init() {
	Register(&MimoProvider{})
	RegisterURLHint("api.xiaomimimo.com", ProviderMimo)
}

func (p *MimoProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderMimo,
		DisplayName: "Xiaomi MiMo",
		Description: "mimo-v2-flash",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: MimoBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
		},
		RequiresAuth: true,
	}
}

func (p *MimoProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for Mimo provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
