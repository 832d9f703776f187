// Package session owns conversation state: the ordered session list, the
// current-session pointer, and message mutation, persisted as a JSON blob
// in the key-value store.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webchat-ai/webchat/internal/llm"
)

// DefaultTitle is the placeholder title a session carries until its
// first user message arrives.
const DefaultTitle = "new conversation"

// titleMaxRunes caps derived titles.
const titleMaxRunes = 20

// Default content for a fresh session.
const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultGreeting     = "Hi! Ask me anything and I'll do my best to help."
)

// Message is one chat turn. Immutable once appended, except for the
// in-progress assistant message which grows by streamed deltas.
type Message struct {
	ID      string   `json:"id"`
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Session is one persisted conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewID generates a message or session ID.
func NewID() string {
	return uuid.NewString()
}

// newDefaultSession builds a session seeded with the system prompt and
// an assistant greeting.
func newDefaultSession() *Session {
	now := time.Now()
	return &Session{
		ID:    NewID(),
		Title: DefaultTitle,
		Messages: []Message{
			{ID: NewID(), Role: llm.RoleSystem, Content: DefaultSystemPrompt},
			{ID: NewID(), Role: llm.RoleAssistant, Content: DefaultGreeting},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// deriveTitle returns the title for a session after a message update.
// The title is taken from the first user message the first time one
// appears while the session still carries the placeholder title.
func deriveTitle(current string, messages []Message) string {
	if current != DefaultTitle {
		return current
	}
	var first string
	count := 0
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			count++
			if count == 1 {
				first = m.Content
			}
		}
	}
	if count != 1 {
		return current
	}

	flattened := strings.ReplaceAll(first, "\n", " ")
	runes := []rune(flattened)
	if len(runes) <= titleMaxRunes {
		return flattened
	}
	return string(runes[:titleMaxRunes]) + "..."
}

// WireMessages strips internal IDs, producing the role+content list sent
// to a backend.
func WireMessages(messages []Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
