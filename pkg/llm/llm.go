// Package llm defines the turn-based generation contract consumed by the
// answer engine, with OpenAI-compatible and Ollama client implementations.
package llm

import "context"

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces a whole response for a conversation.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// StreamClient additionally supports incremental-fragment streaming. The
// callback receives fragments in order; concatenating them yields exactly
// what Generate would have returned. A callback error aborts the stream.
type StreamClient interface {
	Client
	GenerateStream(ctx context.Context, messages []Message, fn func(string) error) error
}

// Options configures a generation client.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int

	BaseURL string
	APIKey  string
}
