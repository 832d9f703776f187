package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/engine"
	"github.com/webchat-ai/webchat/internal/llm"
	"github.com/webchat-ai/webchat/internal/session"
)

// errEngineTimeout marks a request that never got a stream out of the
// engine; the engine is presumed wedged and gets reinitialized.
var errEngineTimeout = errors.New("engine request timed out")

// maxSendRetries bounds automatic retries after engine timeouts.
const maxSendRetries = 2

// LocalController drives requests against the locally managed inference
// engine.
type LocalController struct {
	cfg      StreamConfig
	model    string
	manager  *engine.Manager
	sessions *session.Store
	logger   *zap.Logger

	// status receives human-readable progress/status text.
	status func(text string)

	mu         sync.Mutex
	loading    bool
	processing bool
	engineBusy bool
	paused     bool
	cancel     context.CancelFunc

	// requestTimeout races against stream creation; cooldown delays the
	// engine-busy release so back-to-back sends don't hit an engine that
	// has not settled; resumeDelay spaces out a download resume.
	requestTimeout time.Duration
	cooldown       time.Duration
	resumeDelay    time.Duration
	retryDelay     time.Duration
}

// NewLocalController creates a controller for the given model backed by
// the shared engine manager.
func NewLocalController(cfg StreamConfig, model string, manager *engine.Manager, sessions *session.Store, status func(string), logger *zap.Logger) *LocalController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if status == nil {
		status = func(string) {}
	}
	return &LocalController{
		cfg:            cfg,
		model:          model,
		manager:        manager,
		sessions:       sessions,
		logger:         logger,
		status:         status,
		requestTimeout: 15 * time.Second,
		cooldown:       200 * time.Millisecond,
		resumeDelay:    time.Second,
		retryDelay:     time.Second,
	}
}

// SetDownloadPaused flags the model download as user-paused; the next
// send clears it and resumes transparently.
func (c *LocalController) SetDownloadPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

// StartInit begins engine initialization in the background so the model
// starts downloading when local mode activates, not on the first send.
// A paused download stays paused until the user sends something.
func (c *LocalController) StartInit(ctx context.Context) {
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()
	if paused {
		c.status(pausedNotice)
		return
	}
	c.kickInit(ctx)
}

// kickInit ensures the engine asynchronously. Concurrent kicks join the
// same in-flight creation.
func (c *LocalController) kickInit(ctx context.Context) {
	go func() {
		if _, err := c.manager.Ensure(ctx, c.model, c.progress); err != nil && ctx.Err() == nil {
			c.logger.Error("engine initialization failed", zap.Error(err))
			c.status(fmt.Sprintf(initFailedFmt, err))
		}
	}()
}

// PauseDownload marks an in-flight initialization as user-paused,
// reporting whether there was anything to pause. A ready engine and an
// idle controller are left alone.
func (c *LocalController) PauseDownload() bool {
	if c.manager.Ready(c.model) || !c.manager.Initializing() {
		return false
	}
	c.SetDownloadPaused(true)
	return true
}

func (c *LocalController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *LocalController) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.loading && !c.processing && !c.engineBusy
}

// Send runs one full send operation: append the user message, ensure the
// backend is ready, stream the response through the heuristics, and
// resolve every failure mode to a terminal message in the conversation.
// It never returns an error for conditions already surfaced to the user.
func (c *LocalController) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.loading || c.processing || c.engineBusy {
		c.mu.Unlock()
		return nil
	}
	wasPaused := c.paused
	c.paused = false

	opCtx, cancel := context.WithCancel(ctx)
	c.loading = true
	c.processing = true
	c.engineBusy = true
	c.cancel = cancel
	c.mu.Unlock()

	defer c.release(cancel)

	if wasPaused {
		c.status("Resuming model download, one moment...")
		select {
		case <-opCtx.Done():
			return nil
		case <-time.After(c.resumeDelay):
		}
	}

	// The user message lands synchronously, before any backend work.
	current := c.sessions.CurrentSession()
	base := appendMessage(current.Messages, llm.RoleUser, text)
	c.sessions.UpdateMessages(context.Background(), current.ID, base)

	if !c.manager.Ready(c.model) {
		// Engine still initializing: kick (or rejoin) the creation and
		// leave a placeholder instead of blocking the send on a long
		// download. This is also the path that resumes a paused one.
		c.kickInit(context.Background())
		c.sessions.UpdateMessages(context.Background(), current.ID,
			appendMessage(base, llm.RoleAssistant, initializingNotice))
		return nil
	}

	wire := session.WireMessages(base)

	for attempt := 0; ; attempt++ {
		if opCtx.Err() != nil {
			return nil
		}
		if attempt > 0 {
			c.logger.Warn("engine timed out, reinitializing",
				zap.Int("attempt", attempt), zap.String("model", c.model))
			c.sessions.UpdateMessages(context.Background(), current.ID,
				appendMessage(base, llm.RoleAssistant, retryingNotice))
			if _, err := c.manager.ForceReinit(opCtx, c.model, c.progress); err != nil {
				c.appendFailure(current.ID, base, err)
				return nil
			}
			select {
			case <-opCtx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
		}

		stream, err := c.openStream(opCtx, wire)
		if err != nil {
			if opCtx.Err() != nil {
				return nil
			}
			// Timeouts and transient network failures get a fresh engine;
			// configuration errors are surfaced immediately.
			if attempt < maxSendRetries && (errors.Is(err, errEngineTimeout) || engine.Retryable(err)) {
				continue
			}
			c.appendFailure(current.ID, base, err)
			return nil
		}

		if err := c.consume(opCtx, stream, current.ID, base); err != nil && opCtx.Err() == nil {
			c.appendFailure(current.ID, base, err)
		}
		return nil
	}
}

// openStream requests a completion stream, racing the engine call
// against the request timeout. Losing the race abandons (and closes)
// whatever the engine eventually produces, so a late settlement cannot
// touch session state.
func (c *LocalController) openStream(ctx context.Context, wire []llm.Message) (llm.Stream, error) {
	eng, err := c.manager.Ensure(ctx, c.model, c.progress)
	if err != nil {
		return nil, err
	}

	type result struct {
		stream llm.Stream
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		stream, err := eng.ChatStream(ctx, llm.Request{Model: c.model, Messages: wire})
		ch <- result{stream, err}
	}()

	abandon := func() {
		go func() {
			if r := <-ch; r.stream != nil {
				r.stream.Close()
			}
		}()
	}

	select {
	case r := <-ch:
		return r.stream, r.err
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-time.After(c.requestTimeout):
		abandon()
		return nil, errEngineTimeout
	}
}

// consume reads the stream to completion, feeding deltas through the
// accumulator. Cancellation is checked on every iteration; the stream is
// always closed so engine resources are released even when consumption
// stops early.
func (c *LocalController) consume(ctx context.Context, stream llm.Stream, sessionID string, base []session.Message) error {
	defer stream.Close()

	assistantID := session.NewID()
	acc := newAccumulator(c.cfg, func(content string) {
		if ctx.Err() != nil {
			return
		}
		messages := make([]session.Message, len(base), len(base)+1)
		copy(messages, base)
		messages = append(messages, session.Message{ID: assistantID, Role: llm.RoleAssistant, Content: content})
		c.sessions.UpdateMessages(context.Background(), sessionID, messages)
	})

	for {
		if ctx.Err() != nil {
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
			return err
		}

		switch event.Type {
		case llm.EventDone:
			acc.Finish()
			return nil
		case llm.EventTextDelta:
			if !acc.Push(event.Text) {
				c.logStop(acc)
				acc.Finish()
				return nil
			}
		}
	}

	acc.Finish()
	return nil
}

func (c *LocalController) logStop(acc *accumulator) {
	switch acc.reason {
	case stopLength:
		c.logger.Info("response hit the length cap", zap.Int("max", c.cfg.MaxLength))
	case stopDuplicates:
		c.logger.Warn("stopping stream after repeated duplicate chunks")
	case stopQuality:
		c.logger.Warn("stopping stream on quality check", zap.String("reason", acc.qualityReason))
	}
}

// appendFailure resolves an error to an inline assistant message, after
// sweeping any empty bubble left behind.
func (c *LocalController) appendFailure(sessionID string, base []session.Message, err error) {
	c.logger.Error("send failed", zap.Error(err))
	cleaned, _ := sweepEmptyAssistant(base)
	c.sessions.UpdateMessages(context.Background(), sessionID,
		appendMessage(cleaned, llm.RoleAssistant, fmt.Sprintf(requestFailedFmt, err)))
}

// release clears busy state. The engine-busy flag is held for a short
// cool-down so the next send does not race an engine that is still
// settling.
func (c *LocalController) release(cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	c.loading = false
	c.processing = false
	c.cancel = nil
	c.mu.Unlock()

	time.AfterFunc(c.cooldown, func() {
		c.mu.Lock()
		c.engineBusy = false
		c.mu.Unlock()
	})
}

// Stop cancels the active send and removes any assistant message that
// never received content.
func (c *LocalController) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.loading = false
	c.processing = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	time.AfterFunc(c.cooldown, func() {
		c.mu.Lock()
		c.engineBusy = false
		c.mu.Unlock()
	})

	current := c.sessions.CurrentSession()
	if cleaned, changed := sweepEmptyAssistant(current.Messages); changed {
		c.sessions.UpdateMessages(context.Background(), current.ID, cleaned)
	}
}

func (c *LocalController) progress(phase engine.Phase, text string) {
	c.status(text)
}
