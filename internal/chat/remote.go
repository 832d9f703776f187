package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/llm"
	"github.com/webchat-ai/webchat/internal/session"
)

// RemoteAPIConfig is the remote chat-completions endpoint configuration.
type RemoteAPIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// RemoteController drives requests against a remote OpenAI-compatible
// chat-completions API.
type RemoteController struct {
	cfg      StreamConfig
	api      RemoteAPIConfig
	engine   llm.Engine
	sessions *session.Store
	logger   *zap.Logger

	mu      sync.Mutex
	loading bool
	cancel  context.CancelFunc
}

// NewRemoteController creates a controller for the given API config.
func NewRemoteController(cfg StreamConfig, api RemoteAPIConfig, sessions *session.Store, logger *zap.Logger) *RemoteController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteController{
		cfg:      cfg,
		api:      api,
		engine:   llm.NewRemoteEngine(api.BaseURL, api.APIKey, logger),
		sessions: sessions,
		logger:   logger,
	}
}

func (c *RemoteController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *RemoteController) CanSend() bool {
	return !c.Loading()
}

// Send posts the conversation with stream:true and consumes the SSE
// response through the shared accumulator. Failures resolve to an
// inline message; cancellation resolves to silence.
func (c *RemoteController) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil
	}
	opCtx, cancel := context.WithCancel(ctx)
	c.loading = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.loading = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	current := c.sessions.CurrentSession()
	base := appendMessage(current.Messages, llm.RoleUser, text)

	// The user message and an empty assistant bubble land immediately;
	// the bubble shows the loading state until the first delta replaces
	// it (or a stop sweeps it away).
	assistantID := session.NewID()
	withBubble := append(base[:len(base):len(base)], session.Message{ID: assistantID, Role: llm.RoleAssistant})
	c.sessions.UpdateMessages(context.Background(), current.ID, withBubble)

	c.logger.Debug("sending remote request",
		zap.String("model", c.api.Model), zap.Int("messages", len(base)))

	stream, err := c.engine.ChatStream(opCtx, llm.Request{
		Model:    c.api.Model,
		Messages: session.WireMessages(base),
	})
	if err != nil {
		if opCtx.Err() == nil {
			c.appendFailure(current.ID, base, err)
		}
		return nil
	}
	defer stream.Close()

	acc := newAccumulator(c.cfg, func(content string) {
		if opCtx.Err() != nil {
			return
		}
		messages := make([]session.Message, len(base), len(base)+1)
		copy(messages, base)
		messages = append(messages, session.Message{ID: assistantID, Role: llm.RoleAssistant, Content: content})
		c.sessions.UpdateMessages(context.Background(), current.ID, messages)
	})

	for {
		if opCtx.Err() != nil {
			return nil
		}
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.appendFailure(current.ID, base, err)
			return nil
		}

		switch event.Type {
		case llm.EventDone:
			acc.Finish()
			return nil
		case llm.EventTextDelta:
			if !acc.Push(event.Text) {
				acc.Finish()
				return nil
			}
		}
	}

	acc.Finish()
	return nil
}

func (c *RemoteController) appendFailure(sessionID string, base []session.Message, err error) {
	c.logger.Error("remote send failed", zap.Error(err))
	cleaned, _ := sweepEmptyAssistant(base)
	c.sessions.UpdateMessages(context.Background(), sessionID,
		appendMessage(cleaned, llm.RoleAssistant, fmt.Sprintf(requestFailedFmt, err)))
}

// Stop cancels the active request and sweeps empty assistant bubbles.
func (c *RemoteController) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.loading = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	current := c.sessions.CurrentSession()
	if cleaned, changed := sweepEmptyAssistant(current.Messages); changed {
		c.sessions.UpdateMessages(context.Background(), current.ID, cleaned)
	}
}
