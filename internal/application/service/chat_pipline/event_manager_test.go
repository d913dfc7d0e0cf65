package chatpipline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/service"
	"github.com/marginalia-labs/marginalia/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlugin struct {
	events []types.EventType
	log    *[]string
	name   string
	fail   bool
}

func (p *recordingPlugin) ActivationEvents() []types.EventType { return p.events }

func (p *recordingPlugin) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	*p.log = append(*p.log, p.name)
	if p.fail {
		return &PluginError{Stage: p.name, Description: "forced failure"}
	}
	return next()
}

func TestEventManagerChainsInRegistrationOrder(t *testing.T) {
	events := NewEventManager()
	var log []string
	events.Register(&recordingPlugin{events: []types.EventType{types.SEARCH}, log: &log, name: "first"})
	events.Register(&recordingPlugin{events: []types.EventType{types.SEARCH}, log: &log, name: "second"})

	perr := events.Trigger(context.Background(), types.SEARCH, &types.ChatManage{})
	require.Nil(t, perr)
	assert.Equal(t, []string{"first", "second"}, log)
}

func TestEventManagerStopsOnFailure(t *testing.T) {
	events := NewEventManager()
	var log []string
	events.Register(&recordingPlugin{events: []types.EventType{types.SEARCH}, log: &log, name: "failing", fail: true})
	events.Register(&recordingPlugin{events: []types.EventType{types.SEARCH}, log: &log, name: "unreached"})

	perr := events.Trigger(context.Background(), types.SEARCH, &types.ChatManage{})
	require.NotNil(t, perr)
	assert.Equal(t, []string{"failing"}, log)
}

func TestEventManagerUnknownEventIsNoop(t *testing.T) {
	events := NewEventManager()
	assert.Nil(t, events.Trigger(context.Background(), types.EventType("ghost"), &types.ChatManage{}))
}

func TestPluginIntoChatMessageAssemblesPrompt(t *testing.T) {
	events := NewEventManager()
	NewPluginIntoChatMessage(events, service.NewContextBuilder())

	cm := &types.ChatManage{
		SessionID:     uuid.New(),
		UserID:        "user-1",
		Query:         "explain attention briefly",
		ContextBudget: 2000,
		Memories:      []string{"prefers short answers"},
		History: []types.HistoryMessage{
			{Role: "user", Content: "explain attention briefly"},
		},
		SearchResult: []*types.RAGChunk{
			{
				ChunkID:      uuid.New(),
				InsightID:    uuid.New(),
				ChunkText:    "attention weighs every input position",
				ChunkSize:    38,
				Score:        0.83,
				InsightTitle: "Transformers",
				InsightURL:   "https://example.com/transformers",
			},
		},
	}
	perr := events.Trigger(context.Background(), types.INTO_CHAT_MESSAGE, cm)
	require.Nil(t, perr)

	require.NotEmpty(t, cm.ChatMessages)
	system := cm.ChatMessages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "attention weighs every input position")
	assert.Contains(t, system.Content, "prefers short answers")
	assert.Equal(t, "user", cm.ChatMessages[len(cm.ChatMessages)-1].Role)
	assert.Equal(t, 1, len(cm.RagContext.Chunks))
}

func TestPluginIntoChatMessageNoContextFallback(t *testing.T) {
	events := NewEventManager()
	NewPluginIntoChatMessage(events, service.NewContextBuilder())

	cm := &types.ChatManage{
		SessionID:     uuid.New(),
		Query:         "anything at all",
		ContextBudget: 2000,
		History:       []types.HistoryMessage{{Role: "user", Content: "anything at all"}},
	}
	perr := events.Trigger(context.Background(), types.INTO_CHAT_MESSAGE, cm)
	require.Nil(t, perr)
	assert.Contains(t, cm.ChatMessages[0].Content, service.GetPrompts().ChatNoContext)
}
