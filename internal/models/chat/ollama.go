package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types"
	ollamaapi "github.com/ollama/ollama/api"
)

// OllamaChat talks to a self-hosted Ollama server for the local ModelSource.
type OllamaChat struct {
	client    *ollamaapi.Client
	modelName string
	modelID   string
}

// NewOllamaChat builds an Ollama chat client pointed at config.BaseURL.
func NewOllamaChat(config *ChatConfig) (*OllamaChat, error) {
	if config.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	base := config.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	return &OllamaChat{
		client:    ollamaapi.NewClient(u, http.DefaultClient),
		modelName: config.ModelName,
		modelID:   config.ModelID,
	}, nil
}

func (c *OllamaChat) convertMessages(messages []Message) []ollamaapi.Message {
	out := make([]ollamaapi.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollamaapi.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *OllamaChat) buildRequest(messages []Message, opts *ChatOptions, stream bool) *ollamaapi.ChatRequest {
	req := &ollamaapi.ChatRequest{
		Model:    c.modelName,
		Messages: c.convertMessages(messages),
		Stream:   &stream,
		Options:  make(map[string]interface{}),
	}
	if opts != nil {
		if opts.Temperature > 0 {
			req.Options["temperature"] = opts.Temperature
		}
		if opts.TopP > 0 {
			req.Options["top_p"] = opts.TopP
		}
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
	}
	return req
}

// Chat performs a single non-streaming completion call.
func (c *OllamaChat) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*types.ChatResponse, error) {
	req := c.buildRequest(messages, opts, false)

	var content string
	var promptTokens, completionTokens int
	err := c.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
		content = resp.Message.Content
		if resp.EvalCount > 0 {
			promptTokens = resp.PromptEvalCount
			completionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat request: %w", err)
	}

	out := &types.ChatResponse{Content: content}
	out.Usage.PromptTokens = promptTokens
	out.Usage.CompletionTokens = completionTokens
	out.Usage.TotalTokens = promptTokens + completionTokens
	return out, nil
}

// ChatStream performs a streaming completion over the Ollama NDJSON protocol.
func (c *OllamaChat) ChatStream(
	ctx context.Context, messages []Message, opts *ChatOptions,
) (<-chan types.StreamResponse, error) {
	req := c.buildRequest(messages, opts, true)

	out := make(chan types.StreamResponse)
	go func() {
		defer close(out)

		var promptTokens, completionTokens int
		err := c.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			if resp.Message.Content != "" {
				out <- types.StreamResponse{
					ResponseType: types.ResponseTypeAnswer,
					Content:      resp.Message.Content,
				}
			}
			if resp.Done {
				if resp.EvalCount > 0 {
					promptTokens = resp.PromptEvalCount
					completionTokens = resp.EvalCount
				}
				out <- types.StreamResponse{
					ResponseType:     types.ResponseTypeDone,
					Done:             true,
					PromptTokens:     promptTokens,
					CompletionTokens: completionTokens,
				}
			}
			return nil
		})
		if err != nil {
			logger.GetLogger(ctx).Errorf("ollama chat stream failed: %v", err)
			out <- types.StreamResponse{
				ResponseType: types.ResponseTypeError,
				Err:          err,
				Done:         true,
			}
		}
	}()
	return out, nil
}

func (c *OllamaChat) GetModelName() string { return c.modelName }
func (c *OllamaChat) GetModelID() string   { return c.modelID }
