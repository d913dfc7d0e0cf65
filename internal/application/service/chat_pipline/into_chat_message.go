package chatpipline

import (
	"context"
	"strings"

	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/types"
	"github.com/marginalia-labs/marginalia/internal/utils"
)

// PluginIntoChatMessage assembles the prompt for one turn:
// system instruction, top session memories, the RAG context block and the
// recent history ending with the new user message.
type PluginIntoChatMessage struct {
	builder *service.ContextBuilder
}

// NewPluginIntoChatMessage creates and registers the prompt-assembly plugin.
func NewPluginIntoChatMessage(eventManager *EventManager, builder *service.ContextBuilder) *PluginIntoChatMessage {
	res := &PluginIntoChatMessage{builder: builder}
	eventManager.Register(res)
	return res
}

func (p *PluginIntoChatMessage) ActivationEvents() []types.EventType {
	return []types.EventType{types.INTO_CHAT_MESSAGE}
}

func (p *PluginIntoChatMessage) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	if safeQuery, ok := utils.ValidateInput(chatManage.Query); !ok || safeQuery == "" {
		return &PluginError{Stage: "IntoChatMessage", Description: "query rejected"}
	}

	chatManage.RagContext = p.builder.Build(chatManage.SearchResult, chatManage.ContextBudget)

	prompts := service.GetPrompts()
	var system strings.Builder
	system.WriteString(prompts.ChatSystem)

	if len(chatManage.Memories) > 0 {
		system.WriteString("\n\n关于这位用户，已知：\n")
		for _, m := range chatManage.Memories {
			system.WriteString("- " + m + "\n")
		}
	}

	if chatManage.RagContext.Text != "" {
		system.WriteString("\n\n相关笔记片段：\n")
		system.WriteString(chatManage.RagContext.Text)
	} else {
		system.WriteString("\n\n")
		system.WriteString(prompts.ChatNoContext)
	}

	messages := []types.HistoryMessage{{Role: "system", Content: system.String()}}
	messages = append(messages, chatManage.History...)
	chatManage.ChatMessages = messages

	pipelineInfo(ctx, "IntoChatMessage", "prompt_assembled", map[string]interface{}{
		"session_id":     chatManage.SessionID.String(),
		"context_chunks": len(chatManage.RagContext.Chunks),
		"context_tokens": chatManage.RagContext.TotalContextTokens,
		"history_len":    len(chatManage.History),
		"memories":       len(chatManage.Memories),
	})
	return next()
}
