package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder is the default embedder: any hosted OpenAI-compatible
// embeddings endpoint, used for OpenAI itself and every generic/DeepSeek/
// Hunyuan/SiliconFlow-style provider that speaks the same schema.
type OpenAIEmbedder struct {
	client     *openai.Client
	modelName  string
	dimensions int
	modelID    string
}

// NewOpenAIEmbedder builds an OpenAI-compatible embedder.
func NewOpenAIEmbedder(apiKey, baseURL, modelName string, dimensions int, modelID string) (*OpenAIEmbedder, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		modelName:  modelName,
		dimensions: dimensions,
		modelID:    modelID,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.modelName),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) GetModelName() string { return e.modelName }
func (e *OpenAIEmbedder) GetDimensions() int    { return e.dimensions }
func (e *OpenAIEmbedder) GetModelID() string    { return e.modelID }
