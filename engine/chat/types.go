// Package chat holds per-session conversation state and the message-turn
// state machine that ties the query cache, the answer engine, and the
// optional history sink together.
package chat

import (
	"time"

	"github.com/NewsDeskAI/newsdesk/engine/rag"
)

// ChatMessage is one conversation turn. Messages are owned by their
// session's cache entry; ordering is append-only insertion order.
type ChatMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Sources   []rag.Source `json:"sources,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	// Cached marks an assistant turn served from the query cache.
	Cached bool `json:"cached,omitempty"`
	// Partial marks an assistant turn whose stream was cut short by the
	// client disconnecting; Content holds the produced prefix.
	Partial bool `json:"partial,omitempty"`
}

// CachedResult is the query-cache value for one answered query.
type CachedResult struct {
	Response string       `json:"response"`
	Sources  []rag.Source `json:"sources"`
}

// EventType enumerates streaming events.
type EventType string

// Streaming event types, emitted in order: start, sources, chunk*, end.
// A failure replaces the remainder of the sequence with a terminal error.
const (
	EventStart   EventType = "start"
	EventSources EventType = "sources"
	EventChunk   EventType = "chunk"
	EventEnd     EventType = "end"
	EventError   EventType = "error"
)

// Event is one element of a streamed message-turn response.
type Event struct {
	Type    EventType    `json:"type"`
	Content string       `json:"content,omitempty"`
	Sources []rag.Source `json:"sources,omitempty"`
}
