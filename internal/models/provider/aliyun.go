package provider

import (
	"fmt"
	"strings"

	"github.com/marginalia-labs/marginalia/internal/types"
)

const AliyunChatBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// AliyunProvider implements Alibaba Cloud DashScope's OpenAI-compatible mode.
type AliyunProvider struct{}

func init() {
	Register(&AliyunProvider{})
	RegisterURLHint("dashscope.aliyuncs.com", ProviderAliyun)
}

func (p *AliyunProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderAliyun,
		DisplayName: "Aliyun DashScope",
		Description: "qwen-plus, text-embedding-v3, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: AliyunChatBaseURL,
			types.ModelTypeEmbedding:   AliyunChatBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeEmbedding,
		},
		RequiresAuth: true,
	}
}

func (p *AliyunProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for Aliyun DashScope")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}

// IsQwen3Model reports whether modelName needs the enable_thinking
// chat-completion parameter.
func IsQwen3Model(modelName string) bool {
	return strings.HasPrefix(modelName, "qwen3-")
}

// IsDeepSeekModel reports whether modelName is a DeepSeek model hosted
// behind DashScope, which rejects the tool_choice parameter.
func IsDeepSeekModel(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "deepseek")
}
