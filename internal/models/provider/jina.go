package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const JinaBaseURL = "https://api.jina.ai/v1"

// JinaProvider implements Jina AI's embedding API.
type JinaProvider struct{}

func init() {
	Register(&JinaProvider{})
	RegisterURLHint("api.jina.ai", ProviderJina)
}

func (p *JinaProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderJina,
		DisplayName: "Jina",
		Description: "jina-embeddings-v3, jina-embeddings-v2-base-en, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeEmbedding: JinaBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeEmbedding,
		},
		RequiresAuth: true,
	}
}

func (p *JinaProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for Jina AI provider")
	}
	return nil
}
