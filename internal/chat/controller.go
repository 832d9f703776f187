package chat

import (
	"context"
	"strings"

	"github.com/webchat-ai/webchat/internal/llm"
	"github.com/webchat-ai/webchat/internal/session"
)

// Controller is the uniform surface a backend exposes to the UI layer.
// At most one send is active per controller; CanSend is false while one
// is running.
type Controller interface {
	Loading() bool
	CanSend() bool
	Send(ctx context.Context, text string) error
	Stop()
}

// Notices appended to the conversation by the controllers.
const (
	initializingNotice = "Local model is initializing, please wait..."
	retryingNotice     = "Engine hiccup detected, retrying automatically..."
	requestFailedFmt   = "Request failed: %v"
	pausedNotice       = "Model download paused, send a message to resume."
	initFailedFmt      = "Engine initialization failed: %v"
)

// appendMessage returns a copy of messages with one more entry.
func appendMessage(messages []session.Message, role llm.Role, content string) []session.Message {
	out := make([]session.Message, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, session.Message{ID: session.NewID(), Role: role, Content: content})
}

// sweepEmptyAssistant removes assistant messages whose content is blank.
// A stopped stream must never leave an empty bubble behind; a
// whitespace-only "answer" is deliberately treated the same as no answer
// at all.
func sweepEmptyAssistant(messages []session.Message) ([]session.Message, bool) {
	kept := make([]session.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleAssistant && strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, m)
	}
	return kept, len(kept) != len(messages)
}
