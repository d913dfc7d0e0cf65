// Package embedding implements the vectorization half of the LLM client:
// an OpenAI-compatible embedder for every hosted provider plus
// provider-specific adapters where the hosted API diverges from the
// OpenAI embeddings schema, and a local Ollama embedder.
package embedding

import (
	"context"
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/models/provider"
	"github.com/marginalia-labs/marginalia/internal/types"
	"golang.org/x/sync/errgroup"
)

// Embedder converts text to vectors for persistence and retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	GetModelName() string
	GetDimensions() int
	GetModelID() string
}

// Config is the embedder configuration, built from the process LLM
// settings.
type Config struct {
	Source     types.ModelSource `json:"source"`
	BaseURL    string            `json:"base_url"`
	ModelName  string            `json:"model_name"`
	APIKey     string            `json:"api_key"`
	Dimensions int               `json:"dimensions"`
	ModelID    string            `json:"model_id"`
	Provider   string            `json:"provider"`
}

// NewEmbedder builds an Embedder from config, routing remote sources by
// detected provider and local sources to Ollama.
func NewEmbedder(config Config) (Embedder, error) {
	switch config.Source {
	case types.ModelSourceLocal:
		return NewOllamaEmbedder(config.BaseURL, config.ModelName, config.Dimensions, config.ModelID)
	case types.ModelSourceRemote:
		providerName := provider.ProviderName(config.Provider)
		if providerName == "" {
			providerName = provider.DetectProvider(config.BaseURL)
		}
		switch providerName {
		case provider.ProviderAliyun:
			return NewAliyunEmbedder(config.APIKey, config.BaseURL, config.ModelName, config.Dimensions, config.ModelID)
		case provider.ProviderVolcengine:
			return NewVolcengineEmbedder(config.APIKey, config.BaseURL, config.ModelName, config.Dimensions, config.ModelID)
		case provider.ProviderJina:
			return NewJinaEmbedder(config.APIKey, config.BaseURL, config.ModelName, config.Dimensions, config.ModelID)
		default:
			return NewOpenAIEmbedder(config.APIKey, config.BaseURL, config.ModelName, config.Dimensions, config.ModelID)
		}
	default:
		return nil, fmt.Errorf("unsupported embedder source: %s", config.Source)
	}
}

// batchConcurrency bounds the fan-out used by embedders whose upstream API
// embeds one text per request.
const batchConcurrency = 8

// runBatch calls embedOne for every text with bounded concurrency and
// preserves input order in the returned slice.
func runBatch(ctx context.Context, texts []string, embedOne func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, batchConcurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			vec, err := embedOne(gctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
