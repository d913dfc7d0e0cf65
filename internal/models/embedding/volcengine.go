package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marginalia-labs/marginalia/internal/logger"
)

const volcengineMultimodalEmbeddingPath = "/api/v3/embeddings/multimodal"

// VolcengineEmbedder vectorizes text using Volcengine Ark's multimodal
// embedding API, which embeds one input per request.
type VolcengineEmbedder struct {
	apiKey     string
	baseURL    string
	modelName  string
	dimensions int
	modelID    string
	httpClient *http.Client
	maxRetries int
}

type volcengineEmbedRequest struct {
	Model string                   `json:"model"`
	Input []volcengineInputContent `json:"input"`
}

type volcengineInputContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type volcengineEmbedResponse struct {
	Data struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type volcengineErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewVolcengineEmbedder builds a Volcengine Ark multimodal embedder.
func NewVolcengineEmbedder(apiKey, baseURL, modelName string, dimensions int, modelID string) (*VolcengineEmbedder, error) {
	if baseURL == "" {
		baseURL = "https://ark.cn-beijing.volces.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if idx := strings.Index(baseURL, "/api/"); idx != -1 {
		baseURL = baseURL[:idx]
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &VolcengineEmbedder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		modelName:  modelName,
		dimensions: dimensions,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
	}, nil
}

func (e *VolcengineEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

func (e *VolcengineEmbedder) doRequestWithRetry(ctx context.Context, jsonData []byte) (*http.Response, error) {
	url := e.baseURL + volcengineMultimodalEmbeddingPath
	var lastErr error
	for i := 0; i <= e.maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			logger.GetLogger(ctx).Infof("volcengine embedder retrying request (%d/%d), waiting %v", i, e.maxRetries, backoff)
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
		logger.GetLogger(ctx).Errorf("volcengine embedder request failed (attempt %d/%d): %v", i+1, e.maxRetries+1, err)
	}
	return nil, lastErr
}

// BatchEmbed calls the multimodal endpoint once per input since Volcengine
// returns a single combined embedding rather than one per input item.
func (e *VolcengineEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return runBatch(ctx, texts, func(ctx context.Context, text string) ([]float32, error) {
		reqBody := volcengineEmbedRequest{
			Model: e.modelName,
			Input: []volcengineInputContent{{Type: "text", Text: text}},
		}
		jsonData, err := json.Marshal(reqBody)
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
			var errResp volcengineErrorResponse
			if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
				return nil, fmt.Errorf("volcengine embed API error: %s - %s", errResp.Error.Code, errResp.Error.Message)
			}
			return nil, fmt.Errorf("volcengine embed API error: http status %s", resp.Status)
		}

		var response volcengineEmbedResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		return response.Data.Embedding, nil
	})
}

func (e *VolcengineEmbedder) GetModelName() string { return e.modelName }
func (e *VolcengineEmbedder) GetDimensions() int    { return e.dimensions }
func (e *VolcengineEmbedder) GetModelID() string    { return e.modelID }
