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

const aliyunMultimodalEmbeddingEndpoint = "/api/v1/services/embeddings/multimodal-embedding/multimodal-embedding"

// AliyunEmbedder vectorizes text using Aliyun DashScope's multimodal
// embedding API, required for tongyi-embedding-vision-* models where the
// OpenAI-compatible endpoint returns an empty result.
type AliyunEmbedder struct {
	apiKey     string
	baseURL    string
	modelName  string
	dimensions int
	modelID    string
	httpClient *http.Client
	maxRetries int
}

type aliyunEmbedRequest struct {
	Model string          `json:"model"`
	Input aliyunEmbedInput `json:"input"`
}

type aliyunEmbedInput struct {
	Contents []aliyunContent `json:"contents"`
}

type aliyunContent struct {
	Text string `json:"text,omitempty"`
}

type aliyunEmbedResponse struct {
	Output struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
	RequestID string `json:"request_id"`
}

type aliyunErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewAliyunEmbedder builds an Aliyun DashScope multimodal embedder.
func NewAliyunEmbedder(apiKey, baseURL, modelName string, dimensions int, modelID string) (*AliyunEmbedder, error) {
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.Replace(baseURL, "/compatible-mode/v1", "", 1)
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &AliyunEmbedder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		modelName:  modelName,
		dimensions: dimensions,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
	}, nil
}

func (e *AliyunEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

func (e *AliyunEmbedder) doRequestWithRetry(ctx context.Context, jsonData []byte) (*http.Response, error) {
	url := e.baseURL + aliyunMultimodalEmbeddingEndpoint
	var lastErr error
	for i := 0; i <= e.maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			logger.GetLogger(ctx).Infof("aliyun embedder retrying request (%d/%d), waiting %v", i, e.maxRetries, backoff)
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
		logger.GetLogger(ctx).Errorf("aliyun embedder request failed (attempt %d/%d): %v", i+1, e.maxRetries+1, err)
	}
	return nil, lastErr
}

func (e *AliyunEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]aliyunContent, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, aliyunContent{Text: text})
	}
	jsonData, err := json.Marshal(aliyunEmbedRequest{Model: e.modelName, Input: aliyunEmbedInput{Contents: contents}})
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
		var errResp aliyunErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, fmt.Errorf("aliyun embed API error: %s - %s", errResp.Code, errResp.Message)
		}
		return nil, fmt.Errorf("aliyun embed API error: http status %s", resp.Status)
	}

	var response aliyunEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	embeddings := make([][]float32, len(texts))
	for _, emb := range response.Output.Embeddings {
		if emb.TextIndex >= 0 && emb.TextIndex < len(embeddings) {
			embeddings[emb.TextIndex] = emb.Embedding
		}
	}
	return embeddings, nil
}

func (e *AliyunEmbedder) GetModelName() string { return e.modelName }
func (e *AliyunEmbedder) GetDimensions() int    { return e.dimensions }
func (e *AliyunEmbedder) GetModelID() string    { return e.modelID }
