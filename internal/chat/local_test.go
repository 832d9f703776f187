package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/engine"
	"github.com/webchat-ai/webchat/internal/llm"
	"github.com/webchat-ai/webchat/internal/session"
)

const testModel = "test-model-q4"

// stallEngine never produces a stream; requests against it time out.
type stallEngine struct{}

func (stallEngine) ChatStream(ctx context.Context, _ llm.Request) (llm.Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newLocalForTest(t *testing.T, factory engine.Factory) (*LocalController, *session.Store, *engine.Manager) {
	t.Helper()
	sessions := newTestSessions(t)
	manager := engine.NewManager(engine.NewRegistry(), factory, zap.NewNop())
	c := NewLocalController(DefaultStreamConfig(), testModel, manager, sessions, nil, zap.NewNop())
	c.requestTimeout = 100 * time.Millisecond
	c.cooldown = time.Millisecond
	c.resumeDelay = time.Millisecond
	c.retryDelay = time.Millisecond
	return c, sessions, manager
}

func staticFactory(eng llm.Engine) engine.Factory {
	return func(context.Context, string, func(string)) (llm.Engine, error) {
		return eng, nil
	}
}

func warmUp(t *testing.T, manager *engine.Manager) {
	t.Helper()
	if _, err := manager.Ensure(context.Background(), testModel, nil); err != nil {
		t.Fatalf("warm up: %v", err)
	}
}

func lastMessage(t *testing.T, sessions *session.Store) session.Message {
	t.Helper()
	messages := sessions.CurrentSession().Messages
	if len(messages) == 0 {
		t.Fatal("no messages")
	}
	return messages[len(messages)-1]
}

func TestLocalSendStreamsResponse(t *testing.T) {
	mock := llm.NewMockEngine().AddTextResponse("Sure, here is a short answer for you.")
	c, sessions, manager := newLocalForTest(t, staticFactory(mock))
	warmUp(t, manager)

	if err := c.Send(context.Background(), "please answer"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	last := lastMessage(t, sessions)
	if last.Role != llm.RoleAssistant || last.Content != "Sure, here is a short answer for you." {
		t.Errorf("last message = %+v", last)
	}

	current := sessions.CurrentSession()
	if current.Title != "please answer" {
		t.Errorf("title = %q, want derived from the user message", current.Title)
	}
	if got := mock.Requests[0].Model; got != testModel {
		t.Errorf("request model = %q", got)
	}
}

func TestLocalSendTrimsAndRejectsEmpty(t *testing.T) {
	mock := llm.NewMockEngine()
	c, sessions, manager := newLocalForTest(t, staticFactory(mock))
	warmUp(t, manager)

	before := len(sessions.CurrentSession().Messages)
	if err := c.Send(context.Background(), "   \n  "); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := len(sessions.CurrentSession().Messages); got != before {
		t.Errorf("blank send mutated the session: %d -> %d messages", before, got)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("blank send reached the engine: %d requests", mock.RequestCount())
	}
}

func TestLocalSendNotReadyAppendsPlaceholderAndKicksInit(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	defer close(release)
	factory := func(ctx context.Context, _ string, _ func(string)) (llm.Engine, error) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
		return llm.NewMockEngine(), nil
	}
	c, sessions, _ := newLocalForTest(t, factory)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	last := lastMessage(t, sessions)
	if last.Content != initializingNotice {
		t.Errorf("last message = %q, want the initializing notice", last.Content)
	}
	messages := sessions.CurrentSession().Messages
	if messages[len(messages)-2].Content != "hello" {
		t.Errorf("user message missing before the notice: %+v", messages)
	}

	// The send must not just leave a placeholder; it has to start the
	// engine creation it is waiting on.
	for deadline := time.Now().Add(2 * time.Second); atomic.LoadInt32(&calls) == 0; {
		if time.Now().After(deadline) {
			t.Fatal("send never started engine creation")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLocalStartInitUnblocksSends(t *testing.T) {
	mock := llm.NewMockEngine().AddTextResponse("Model is up and answering.")
	release := make(chan struct{})
	var calls int32
	factory := func(ctx context.Context, _ string, _ func(string)) (llm.Engine, error) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
		return mock, nil
	}
	c, sessions, manager := newLocalForTest(t, factory)

	c.StartInit(context.Background())
	for deadline := time.Now().Add(2 * time.Second); atomic.LoadInt32(&calls) == 0; {
		if time.Now().After(deadline) {
			t.Fatal("StartInit never reached the factory")
		}
		time.Sleep(time.Millisecond)
	}

	// A send racing the download gets the placeholder, not a stream.
	if err := c.Send(context.Background(), "too early"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if last := lastMessage(t, sessions); last.Content != initializingNotice {
		t.Errorf("send during init = %q, want the initializing notice", last.Content)
	}

	close(release)
	for deadline := time.Now().Add(2 * time.Second); !manager.Ready(testModel); {
		if time.Now().After(deadline) {
			t.Fatal("engine never became ready")
		}
		time.Sleep(time.Millisecond)
	}
	for deadline := time.Now().Add(time.Second); !c.CanSend(); {
		if time.Now().After(deadline) {
			t.Fatal("CanSend never recovered")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.Send(context.Background(), "and now?"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if last := lastMessage(t, sessions); last.Content != "Model is up and answering." {
		t.Errorf("send after init = %q, want the streamed response", last.Content)
	}
	// The send during initialization must have joined the in-flight
	// creation, not started a second one.
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("factory calls = %d, want 1", n)
	}
}

func TestLocalStartInitRespectsPausedDownload(t *testing.T) {
	var calls int32
	var statuses []string
	sessions := newTestSessions(t)
	factory := func(context.Context, string, func(string)) (llm.Engine, error) {
		atomic.AddInt32(&calls, 1)
		return llm.NewMockEngine(), nil
	}
	manager := engine.NewManager(engine.NewRegistry(), factory, zap.NewNop())
	c := NewLocalController(DefaultStreamConfig(), testModel, manager, sessions,
		func(text string) { statuses = append(statuses, text) }, zap.NewNop())

	c.SetDownloadPaused(true)
	c.StartInit(context.Background())

	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("paused download must not auto-resume, factory calls = %d", n)
	}
	found := false
	for _, s := range statuses {
		if s == pausedNotice {
			found = true
		}
	}
	if !found {
		t.Errorf("no paused status reported: %v", statuses)
	}
}

func TestLocalPauseDownloadOnlyDuringInit(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	factory := func(ctx context.Context, _ string, _ func(string)) (llm.Engine, error) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
		return llm.NewMockEngine(), nil
	}
	c, _, manager := newLocalForTest(t, factory)

	if c.PauseDownload() {
		t.Error("nothing to pause before initialization starts")
	}

	c.StartInit(context.Background())
	for deadline := time.Now().Add(2 * time.Second); atomic.LoadInt32(&calls) == 0; {
		if time.Now().After(deadline) {
			t.Fatal("StartInit never reached the factory")
		}
		time.Sleep(time.Millisecond)
	}
	if !c.PauseDownload() {
		t.Error("in-flight initialization should be pausable")
	}
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()
	if !paused {
		t.Error("PauseDownload did not set the paused flag")
	}

	close(release)
	for deadline := time.Now().Add(2 * time.Second); !manager.Ready(testModel); {
		if time.Now().After(deadline) {
			t.Fatal("engine never became ready")
		}
		time.Sleep(time.Millisecond)
	}
	if c.PauseDownload() {
		t.Error("a ready engine must not be pausable")
	}
}

func TestLocalSendTimeoutRetriesWithReinit(t *testing.T) {
	mock := llm.NewMockEngine().AddTextResponse("Recovered after the retry.")
	var calls int32
	factory := func(context.Context, string, func(string)) (llm.Engine, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return stallEngine{}, nil
		}
		return mock, nil
	}
	c, sessions, manager := newLocalForTest(t, factory)
	warmUp(t, manager)

	if err := c.Send(context.Background(), "are you there?"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("factory calls = %d, want 2 (initial + forced reinit)", n)
	}

	last := lastMessage(t, sessions)
	if last.Content != "Recovered after the retry." {
		t.Errorf("last message = %q", last.Content)
	}
	for _, m := range sessions.CurrentSession().Messages {
		if m.Content == retryingNotice {
			t.Error("transient retry notice survived the successful retry")
		}
	}
}

func TestLocalSendReinitFailureIsNotRetried(t *testing.T) {
	var calls int32
	factory := func(context.Context, string, func(string)) (llm.Engine, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return stallEngine{}, nil
		}
		return nil, engine.ErrBackendUnsupported
	}
	c, sessions, manager := newLocalForTest(t, factory)
	warmUp(t, manager)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("factory calls = %d, want 2", n)
	}
	last := lastMessage(t, sessions)
	if !strings.Contains(last.Content, "Request failed") {
		t.Errorf("last message = %q", last.Content)
	}
}

func TestLocalSendEngineErrorAppendsFailure(t *testing.T) {
	mock := llm.NewMockEngine().AddTurn(llm.MockTurn{Error: errors.New("boom")})
	c, sessions, manager := newLocalForTest(t, staticFactory(mock))
	warmUp(t, manager)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	last := lastMessage(t, sessions)
	if !strings.Contains(last.Content, "Request failed") || !strings.Contains(last.Content, "boom") {
		t.Errorf("last message = %q", last.Content)
	}
}

func TestLocalStopCancelsActiveSend(t *testing.T) {
	mock := llm.NewMockEngine().AddTurn(llm.MockTurn{Text: "never arrives", Delay: time.Hour})
	c, sessions, manager := newLocalForTest(t, staticFactory(mock))
	warmUp(t, manager)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Send(context.Background(), "hello")
	}()

	deadline := time.After(2 * time.Second)
	for !c.Loading() {
		select {
		case <-deadline:
			t.Fatal("send never started")
		case <-time.After(time.Millisecond):
		}
	}
	if c.CanSend() {
		t.Error("CanSend must be false while a send is active")
	}

	c.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after Stop")
	}

	last := lastMessage(t, sessions)
	if last.Role != llm.RoleUser || last.Content != "hello" {
		t.Errorf("last message = %+v, want the bare user message", last)
	}

	for deadline := time.Now().Add(time.Second); !c.CanSend(); {
		if time.Now().After(deadline) {
			t.Fatal("CanSend never recovered after Stop")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLocalStopSweepsEmptyAssistant(t *testing.T) {
	c, sessions, _ := newLocalForTest(t, staticFactory(llm.NewMockEngine()))

	current := sessions.CurrentSession()
	seeded := append(current.Messages,
		session.Message{ID: session.NewID(), Role: llm.RoleUser, Content: "hi"},
		session.Message{ID: session.NewID(), Role: llm.RoleAssistant, Content: ""})
	sessions.UpdateMessages(context.Background(), current.ID, seeded)

	c.Stop()

	last := lastMessage(t, sessions)
	if last.Role != llm.RoleUser {
		t.Errorf("empty assistant message survived Stop: %+v", last)
	}
}

func TestLocalSendResumesPausedDownload(t *testing.T) {
	var statusMu sync.Mutex
	var statuses []string
	sessions := newTestSessions(t)
	manager := engine.NewManager(engine.NewRegistry(), staticFactory(llm.NewMockEngine()), zap.NewNop())
	c := NewLocalController(DefaultStreamConfig(), testModel, manager, sessions,
		func(text string) {
			statusMu.Lock()
			statuses = append(statuses, text)
			statusMu.Unlock()
		}, zap.NewNop())
	c.resumeDelay = time.Millisecond
	c.cooldown = time.Millisecond

	c.SetDownloadPaused(true)
	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	found := false
	statusMu.Lock()
	for _, s := range statuses {
		if strings.Contains(s, "Resuming model download") {
			found = true
		}
	}
	statusMu.Unlock()
	if !found {
		t.Errorf("no resume status reported: %v", statuses)
	}

	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()
	if paused {
		t.Error("paused flag must clear after a send")
	}
}
