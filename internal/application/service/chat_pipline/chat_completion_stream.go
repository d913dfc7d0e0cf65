package chatpipline

import (
	"context"
	"strings"

	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/models/chat"
	"github.com/marginalia-labs/marginalia/internal/types"
)

// PluginStream runs the streaming completion, forwarding
// deltas onto the turn's response channel in upstream order and accumulating
// the full answer for persistence.
type PluginStream struct {
	llm *service.LLMService
}

// NewPluginStream creates and registers the streaming-completion plugin.
func NewPluginStream(eventManager *EventManager, llm *service.LLMService) *PluginStream {
	res := &PluginStream{llm: llm}
	eventManager.Register(res)
	return res
}

func (p *PluginStream) ActivationEvents() []types.EventType {
	return []types.EventType{types.CHAT_COMPLETION_STREAM}
}

func (p *PluginStream) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	messages := make([]chat.Message, 0, len(chatManage.ChatMessages))
	for _, m := range chatManage.ChatMessages {
		messages = append(messages, chat.Message{Role: m.Role, Content: m.Content})
	}

	stream, err := p.llm.CompleteStream(ctx, messages, &chat.ChatOptions{Temperature: 0.7})
	if err != nil {
		return (&PluginError{Stage: "Stream", Description: "open stream"}).WithError(err)
	}
	chatManage.Model = p.llm.ChatModelName()

	var answer strings.Builder
	for item := range stream {
		select {
		case <-ctx.Done():
			// Client disconnected: abort generation, discard partial text.
			return (&PluginError{Stage: "Stream", Description: "canceled"}).WithError(ctx.Err())
		default:
		}
		switch item.ResponseType {
		case types.ResponseTypeAnswer:
			answer.WriteString(item.Content)
			chatManage.ResponseChan <- item
		case types.ResponseTypeError:
			return (&PluginError{Stage: "Stream", Description: "upstream stream failed"}).WithError(item.Err)
		case types.ResponseTypeDone:
			chatManage.PromptTokens = item.PromptTokens
			chatManage.CompletionTokens = item.CompletionTokens
		}
	}
	chatManage.Answer = answer.String()

	pipelineInfo(ctx, "Stream", "completed", map[string]interface{}{
		"session_id":        chatManage.SessionID.String(),
		"answer_len":        len(chatManage.Answer),
		"prompt_tokens":     chatManage.PromptTokens,
		"completion_tokens": chatManage.CompletionTokens,
	})
	return next()
}
