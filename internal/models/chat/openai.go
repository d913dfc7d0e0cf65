package chat

import (
	"context"
	"fmt"
	"io"

	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIChat is the default chat backend: any hosted OpenAI-compatible API
// reachable at config.BaseURL, used for every remote ModelSource provider.
type OpenAIChat struct {
	client    *openai.Client
	modelName string
	modelID   string
}

// NewOpenAIChat builds an OpenAI-compatible chat client for config.BaseURL.
func NewOpenAIChat(config *ChatConfig) (*OpenAIChat, error) {
	if config.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &OpenAIChat{
		client:    openai.NewClientWithConfig(cfg),
		modelName: config.ModelName,
		modelID:   config.ModelID,
	}, nil
}

func (c *OpenAIChat) buildRequest(messages []Message, opts *ChatOptions, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req := openai.ChatCompletionRequest{
		Model:    c.modelName,
		Messages: msgs,
		Stream:   stream,
	}
	if opts != nil {
		if opts.Temperature > 0 {
			req.Temperature = float32(opts.Temperature)
		}
		if opts.TopP > 0 {
			req.TopP = float32(opts.TopP)
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
	}
	return req
}

// Chat performs a single non-streaming completion call.
func (c *OpenAIChat) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*types.ChatResponse, error) {
	req := c.buildRequest(messages, opts, false)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	out := &types.ChatResponse{Content: resp.Choices[0].Message.Content}
	out.Usage.PromptTokens = resp.Usage.PromptTokens
	out.Usage.CompletionTokens = resp.Usage.CompletionTokens
	out.Usage.TotalTokens = resp.Usage.TotalTokens
	return out, nil
}

// ChatStream performs a streaming completion, forwarding deltas on the
// returned channel and closing it once the upstream stream is exhausted.
func (c *OpenAIChat) ChatStream(
	ctx context.Context, messages []Message, opts *ChatOptions,
) (<-chan types.StreamResponse, error) {
	req := c.buildRequest(messages, opts, true)
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream request: %w", err)
	}

	out := make(chan types.StreamResponse)
	go func() {
		defer close(out)
		defer stream.Close()

		var promptTokens, completionTokens int
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				out <- types.StreamResponse{
					ResponseType:     types.ResponseTypeDone,
					Done:             true,
					PromptTokens:     promptTokens,
					CompletionTokens: completionTokens,
				}
				return
			}
			if err != nil {
				logger.GetLogger(ctx).Errorf("chat stream recv error: %v", err)
				out <- types.StreamResponse{
					ResponseType: types.ResponseTypeError,
					Err:          err,
					Done:         true,
				}
				return
			}
			if resp.Usage != nil {
				promptTokens = resp.Usage.PromptTokens
				completionTokens = resp.Usage.CompletionTokens
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			out <- types.StreamResponse{
				ResponseType: types.ResponseTypeAnswer,
				Content:      delta,
			}
		}
	}()
	return out, nil
}

func (c *OpenAIChat) GetModelName() string { return c.modelName }
func (c *OpenAIChat) GetModelID() string   { return c.modelID }
