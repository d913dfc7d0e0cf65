package provider

import (
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const SiliconFlowBaseURL = "https://api.siliconflow.cn/v1"

// SiliconFlowProvider implements SiliconFlow's OpenAI-compatible endpoint.
type SiliconFlowProvider struct{}

func init() {
	Register(&SiliconFlowProvider{})
	RegisterURLHint("api.siliconflow.cn", ProviderSiliconFlow)
}

func (p *SiliconFlowProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderSiliconFlow,
		DisplayName: "SiliconFlow",
		Description: "deepseek-ai/DeepSeek-V3, BAAI/bge-m3, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: SiliconFlowBaseURL,
			types.ModelTypeEmbedding:   SiliconFlowBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeEmbedding,
		},
		RequiresAuth: true,
	}
}

func (p *SiliconFlowProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for SiliconFlow provider")
	}
	return nil
}
