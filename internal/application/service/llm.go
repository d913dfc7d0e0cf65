// Package service implements the domain services of the knowledge core:
// the ingestion pipeline stages, retrieval and context building
//, the chat engine and memory consolidator, and the
// digest builder/dispatcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/models/chat"
	"github.com/marginalia-labs/marginalia/internal/models/embedding"
	"github.com/marginalia-labs/marginalia/internal/types"
	openai "github.com/sashabaranov/go-openai"
)

// LLMErrorKind buckets upstream failures.
type LLMErrorKind string

const (
	LLMErrAuth            LLMErrorKind = "AuthError"
	LLMErrRateLimited     LLMErrorKind = "RateLimited"
	LLMErrUpstreamTimeout LLMErrorKind = "UpstreamTimeout"
	LLMErrUpstreamServer  LLMErrorKind = "UpstreamServerError"
	LLMErrBadRequest      LLMErrorKind = "BadRequest"
	LLMErrContextOverflow LLMErrorKind = "ContextOverflow"
)

// LLMError wraps an upstream failure with its taxonomy kind so callers can
// distinguish retryable from fatal.
type LLMError struct {
	Kind  LLMErrorKind
	cause error
}

func (e *LLMError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.cause) }
func (e *LLMError) Unwrap() error { return e.cause }

// Retryable reports whether the error is worth retrying.
func (e *LLMError) Retryable() bool {
	switch e.Kind {
	case LLMErrRateLimited, LLMErrUpstreamTimeout, LLMErrUpstreamServer:
		return true
	}
	return false
}

// classifyLLMError maps an upstream error onto the taxonomy.
func classifyLLMError(err error) *LLMError {
	if err == nil {
		return nil
	}
	var le *LLMError
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LLMError{Kind: LLMErrUpstreamTimeout, cause: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return &LLMError{Kind: LLMErrAuth, cause: err}
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &LLMError{Kind: LLMErrRateLimited, cause: err}
		case apiErr.HTTPStatusCode >= 500:
			return &LLMError{Kind: LLMErrUpstreamServer, cause: err}
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			if strings.Contains(strings.ToLower(apiErr.Message), "context length") ||
				strings.Contains(strings.ToLower(apiErr.Message), "maximum context") {
				return &LLMError{Kind: LLMErrContextOverflow, cause: err}
			}
			return &LLMError{Kind: LLMErrBadRequest, cause: err}
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return &LLMError{Kind: LLMErrUpstreamTimeout, cause: err}
	}
	return &LLMError{Kind: LLMErrUpstreamServer, cause: err}
}

const (
	llmMaxRetries      = 3
	llmBaseBackoff     = 500 * time.Millisecond
	completionTimeout  = 60 * time.Second
	embedBatchTimeout  = 30 * time.Second
	embeddingBatchSize = 96
)

// LLMService is the process-wide LLM client: chat completions (streaming and
// batch) plus batched embeddings, with jittered exponential backoff on
// retryable upstream errors.
type LLMService struct {
	chatModel chat.Chat
	embedder  embedding.Embedder
}

// NewLLMService wires the chat and embedding backends resolved from config
// through the provider registry.
func NewLLMService(cfg *config.Config) (*LLMService, error) {
	source := types.ModelSource(cfg.LLM.Source)
	if source == "" {
		source = types.ModelSourceRemote
	}
	chatModel, err := chat.NewChat(&chat.ChatConfig{
		Source:    source,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		ModelName: cfg.LLM.ChatModel,
		ModelID:   cfg.LLM.ChatModel,
	})
	if err != nil {
		return nil, fmt.Errorf("build chat backend: %w", err)
	}
	embedder, err := embedding.NewEmbedder(embedding.Config{
		Source:     source,
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		ModelName:  cfg.LLM.EmbeddingModel,
		ModelID:    cfg.LLM.EmbeddingModel,
		Dimensions: 1536,
		Provider:   cfg.LLM.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	return &LLMService{chatModel: chatModel, embedder: embedder}, nil
}

// NewLLMServiceWith builds an LLMService over explicit backends, used by tests.
func NewLLMServiceWith(chatModel chat.Chat, embedder embedding.Embedder) *LLMService {
	return &LLMService{chatModel: chatModel, embedder: embedder}
}

// ChatModelName returns the configured chat model identifier.
func (s *LLMService) ChatModelName() string { return s.chatModel.GetModelName() }

// EmbeddingModelName returns the configured embedding model identifier.
func (s *LLMService) EmbeddingModelName() string { return s.embedder.GetModelName() }

// backoff sleeps for an exponentially growing, jittered interval unless ctx ends first.
func backoff(ctx context.Context, attempt int) error {
	d := llmBaseBackoff * time.Duration(1<<attempt)
	d += time.Duration(rand.Int63n(int64(d / 2)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Complete performs a non-streaming chat completion with retries on
// retryable upstream errors.
func (s *LLMService) Complete(
	ctx context.Context, messages []chat.Message, opts *chat.ChatOptions,
) (*types.ChatResponse, error) {
	var lastErr *LLMError
	for attempt := 0; attempt <= llmMaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, completionTimeout)
		resp, err := s.chatModel.Chat(callCtx, messages, opts)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = classifyLLMError(err)
		if !lastErr.Retryable() || attempt == llmMaxRetries {
			return nil, lastErr
		}
		logger.Warnf(ctx, "llm completion retry %d after %s", attempt+1, lastErr.Kind)
		if berr := backoff(ctx, attempt); berr != nil {
			return nil, &LLMError{Kind: LLMErrUpstreamTimeout, cause: berr}
		}
	}
	return nil, lastErr
}

// CompleteStream opens a streaming completion. Streams are not retried; a
// mid-stream failure surfaces as an error item on the channel.
func (s *LLMService) CompleteStream(
	ctx context.Context, messages []chat.Message, opts *chat.ChatOptions,
) (<-chan types.StreamResponse, error) {
	stream, err := s.chatModel.ChatStream(ctx, messages, opts)
	if err != nil {
		return nil, classifyLLMError(err)
	}
	return stream, nil
}

// Embed computes a single embedding, used for retrieval queries.
func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, &LLMError{Kind: LLMErrUpstreamServer, cause: fmt.Errorf("no embedding returned")}
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in upstream batches of at most 96, retrying
// each batch independently so one failing batch does not void prior ones.
// The returned slice preserves input order; a batch that stays failed after
// the retry budget yields nil vectors for its positions and the first such
// error is returned alongside the partial result.
func (s *LLMService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var firstErr error
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := s.embedBatchOnce(ctx, texts[start:end])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		copy(out[start:end], vecs)
	}
	return out, firstErr
}

func (s *LLMService) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr *LLMError
	for attempt := 0; attempt <= llmMaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, embedBatchTimeout)
		vecs, err := s.embedder.BatchEmbed(callCtx, texts)
		cancel()
		if err == nil {
			return vecs, nil
		}
		lastErr = classifyLLMError(err)
		if !lastErr.Retryable() || attempt == llmMaxRetries {
			return nil, lastErr
		}
		logger.Warnf(ctx, "embedding batch retry %d after %s", attempt+1, lastErr.Kind)
		if berr := backoff(ctx, attempt); berr != nil {
			return nil, &LLMError{Kind: LLMErrUpstreamTimeout, cause: berr}
		}
	}
	return nil, lastErr
}
