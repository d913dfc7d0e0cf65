package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	ollamaapi "github.com/ollama/ollama/api"
)

// OllamaEmbedder vectorizes text with a self-hosted Ollama embedding model.
type OllamaEmbedder struct {
	client     *ollamaapi.Client
	modelName  string
	dimensions int
	modelID    string
}

// NewOllamaEmbedder builds an embedder against a local Ollama server.
func NewOllamaEmbedder(baseURL, modelName string, dimensions int, modelID string) (*OllamaEmbedder, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	return &OllamaEmbedder{
		client:     ollamaapi.NewClient(u, http.DefaultClient),
		modelName:  modelName,
		dimensions: dimensions,
		modelID:    modelID,
	}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

func (e *OllamaEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &ollamaapi.EmbedRequest{
		Model: e.modelName,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vec := make([]float32, len(emb))
		copy(vec, emb)
		out[i] = vec
	}
	return out, nil
}

func (e *OllamaEmbedder) GetModelName() string { return e.modelName }
func (e *OllamaEmbedder) GetDimensions() int    { return e.dimensions }
func (e *OllamaEmbedder) GetModelID() string    { return e.modelID }
