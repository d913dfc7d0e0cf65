package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/models/provider"
)

// JinaEmbedder vectorizes text via Jina AI's embeddings API, which is
// mostly OpenAI-compatible but uses a boolean `truncate` flag instead of
// `truncate_prompt_tokens`.
type JinaEmbedder struct {
	apiKey     string
	baseURL    string
	modelName  string
	dimensions int
	modelID    string
	httpClient *http.Client
	maxRetries int
}

type jinaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Truncate   bool     `json:"truncate,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type jinaEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewJinaEmbedder builds a Jina AI embedder.
func NewJinaEmbedder(apiKey, baseURL, modelName string, dimensions int, modelID string) (*JinaEmbedder, error) {
	if baseURL == "" {
		baseURL = provider.JinaBaseURL
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &JinaEmbedder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		modelName:  modelName,
		dimensions: dimensions,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
	}, nil
}

func (e *JinaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

func (e *JinaEmbedder) doRequestWithRetry(ctx context.Context, jsonData []byte) (*http.Response, error) {
	url := e.baseURL + "/embeddings"
	var lastErr error
	for i := 0; i <= e.maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			logger.GetLogger(ctx).Infof("jina embedder retrying request (%d/%d), waiting %v", i, e.maxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.GetLogger(ctx).Errorf("jina embedder request failed (attempt %d/%d): %v", i+1, e.maxRetries+1, err)
	}
	return nil, lastErr
}

func (e *JinaEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	req := jinaEmbedRequest{Model: e.modelName, Input: texts, Truncate: true}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := e.doRequestWithRetry(ctx, jsonData)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jina embed API error: http status %s, body %s", resp.Status, string(body))
	}

	var response jinaEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	embeddings := make([][]float32, 0, len(response.Data))
	for _, d := range response.Data {
		embeddings = append(embeddings, d.Embedding)
	}
	return embeddings, nil
}

func (e *JinaEmbedder) GetModelName() string { return e.modelName }
func (e *JinaEmbedder) GetDimensions() int    { return e.dimensions }
func (e *JinaEmbedder) GetModelID() string    { return e.modelID }
