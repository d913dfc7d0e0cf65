// Package chatpipline implements the conversational engine as an
// event-driven pipeline: each stage of one chat turn is a plugin activated
// by an event type, mutating the shared ChatManage state in order.
package chatpipline

import (
	"context"
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

// PluginError carries a stage failure with a caller-safe description.
type PluginError struct {
	Stage       string
	Description string
	Err         error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Description, e.Err)
}

// WithError attaches the underlying error to a template PluginError.
func (e *PluginError) WithError(err error) *PluginError {
	return &PluginError{Stage: e.Stage, Description: e.Description, Err: err}
}

// Plugin is one pipeline stage.
type Plugin interface {
	// ActivationEvents returns the event types this plugin handles.
	ActivationEvents() []types.EventType
	// OnEvent processes the event. Calling next() yields to the remaining
	// plugins registered for the same event.
	OnEvent(ctx context.Context, eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError) *PluginError
}

// EventManager dispatches events to registered plugins in registration order.
type EventManager struct {
	plugins map[types.EventType][]Plugin
}

func NewEventManager() *EventManager {
	return &EventManager{plugins: make(map[types.EventType][]Plugin)}
}

// Register subscribes plugin to each of its activation events.
func (m *EventManager) Register(plugin Plugin) {
	for _, event := range plugin.ActivationEvents() {
		m.plugins[event] = append(m.plugins[event], plugin)
	}
}

// Trigger runs every plugin registered for eventType as a chain: each plugin
// decides whether to call through to the rest via next().
func (m *EventManager) Trigger(
	ctx context.Context, eventType types.EventType, chatManage *types.ChatManage,
) *PluginError {
	chain := m.plugins[eventType]
	var run func(idx int) *PluginError
	run = func(idx int) *PluginError {
		if idx >= len(chain) {
			return nil
		}
		return chain[idx].OnEvent(ctx, eventType, chatManage, func() *PluginError {
			return run(idx + 1)
		})
	}
	return run(0)
}
