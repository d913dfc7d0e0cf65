package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const (
	VolcengineChatBaseURL      = "https://ark.cn-beijing.volces.com/api/v3"
	VolcengineEmbeddingBaseURL = "https://ark.cn-beijing.volces.com/api/v3/embeddings"
)

// VolcengineProvider implements Volcengine Ark's OpenAI-compatible mode.
type VolcengineProvider struct{}

func init() {
	Register(&VolcengineProvider{})
	RegisterURLHint("ark.cn-beijing.volces.com", ProviderVolcengine)
}

func (p *VolcengineProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderVolcengine,
		DisplayName: "Volcengine",
		Description: "doubao-1.5-pro-32k, doubao-embedding, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: VolcengineChatBaseURL,
			types.ModelTypeEmbedding:   VolcengineEmbeddingBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeEmbedding,
		},
		RequiresAuth: true,
	}
}

func (p *VolcengineProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for Volcengine Ark provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
