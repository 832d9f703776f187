// Package llm defines the wire-level chat types shared by every
// backend: roles, messages, streaming events, and the Engine interface.
package llm

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn on the wire.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// EventType discriminates streaming events.
type EventType int

const (
	// EventTextDelta carries an incremental piece of assistant text.
	EventTextDelta EventType = iota
	// EventDone marks the successful end of a response.
	EventDone
)

// Event is one item in a response stream.
type Event struct {
	Type EventType
	Text string
}

// Stream is a sequence of response events. Recv returns io.EOF after a
// clean end of stream and the producer's error after a failed one;
// Close releases the underlying resources and may be called
// concurrently with Recv.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request is a chat completion request.
type Request struct {
	Model    string
	Messages []Message
}

// Engine produces response streams for chat requests.
type Engine interface {
	ChatStream(ctx context.Context, req Request) (Stream, error)
}

// chunk is the parsed form of one SSE data payload from an
// OpenAI-compatible endpoint. Only the delta text is consumed; the
// schema is validated by the decoder rather than probed dynamically.
type chunk struct {
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Delta chunkDelta `json:"delta"`
}

type chunkDelta struct {
	Content string `json:"content"`
}

// deltaText extracts the text delta, empty when the chunk carries none.
func (c chunk) deltaText() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}
