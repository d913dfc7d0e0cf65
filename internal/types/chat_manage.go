package types

import "github.com/google/uuid"

// EventType names one stage of the event-driven chat pipeline.
type EventType string

const (
	// SEARCH embeds the query and retrieves the user's top-K chunks.
	SEARCH EventType = "search"
	// INTO_CHAT_MESSAGE assembles the system prompt, memories, RAG context
	// and history into the message list sent to the chat model.
	INTO_CHAT_MESSAGE EventType = "into_chat_message"
	// CHAT_COMPLETION_STREAM runs the streaming completion and forwards
	// deltas onto the response channel.
	CHAT_COMPLETION_STREAM EventType = "chat_completion_stream"
)

// HistoryMessage is one prior turn rendered into the prompt.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatManage carries the full state of one chat turn through the pipeline,
// mutated in place by each plugin the way a request context would be.
type ChatManage struct {
	SessionID uuid.UUID
	UserID    string
	Query     string

	RagK          int
	RagMinScore   float64
	ContextBudget int

	// Memories are the top session memories rendered as short bullet lines.
	Memories []string
	// History is the last N turns of the session including the new user message.
	History []HistoryMessage

	SearchResult []*RAGChunk
	RagContext   *RAGContext

	// ChatMessages is the final assembled prompt.
	ChatMessages []HistoryMessage

	// ResponseChan receives streamed deltas; the chat service owns its lifecycle.
	ResponseChan chan StreamResponse

	// Answer accumulates the streamed assistant text.
	Answer           string
	PromptTokens     int
	CompletionTokens int
	Model            string
}
