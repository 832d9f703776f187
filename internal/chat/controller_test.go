package chat

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/kv"
	"github.com/webchat-ai/webchat/internal/llm"
	"github.com/webchat-ai/webchat/internal/session"
)

func newTestSessions(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(context.Background(), kv.NewMemoryStore(), zap.NewNop())
}

func TestSweepEmptyAssistant(t *testing.T) {
	messages := []session.Message{
		{ID: "1", Role: llm.RoleUser, Content: "hello"},
		{ID: "2", Role: llm.RoleAssistant, Content: ""},
		{ID: "3", Role: llm.RoleAssistant, Content: "   \n\t"},
		{ID: "4", Role: llm.RoleAssistant, Content: "kept"},
	}

	cleaned, changed := sweepEmptyAssistant(messages)
	if !changed {
		t.Fatal("sweep should report a change")
	}
	if len(cleaned) != 2 || cleaned[0].ID != "1" || cleaned[1].ID != "4" {
		t.Errorf("cleaned = %+v", cleaned)
	}

	if _, changed := sweepEmptyAssistant(cleaned); changed {
		t.Error("second sweep should be a no-op")
	}
}

func TestSweepKeepsEmptyUserMessages(t *testing.T) {
	messages := []session.Message{{ID: "1", Role: llm.RoleUser, Content: ""}}
	cleaned, changed := sweepEmptyAssistant(messages)
	if changed || len(cleaned) != 1 {
		t.Errorf("user messages must not be swept: %+v", cleaned)
	}
}

func TestAppendMessageDoesNotAliasInput(t *testing.T) {
	original := make([]session.Message, 1, 4)
	original[0] = session.Message{ID: "1", Role: llm.RoleUser, Content: "first"}

	a := appendMessage(original, llm.RoleAssistant, "a")
	b := appendMessage(original, llm.RoleAssistant, "b")

	if a[1].Content != "a" || b[1].Content != "b" {
		t.Errorf("appends interfered: %q vs %q", a[1].Content, b[1].Content)
	}
	if len(original) != 1 {
		t.Errorf("input mutated: %+v", original)
	}
	if a[1].ID == "" {
		t.Error("appended message has no ID")
	}
}

type fakeController struct {
	name    string
	loading bool
	sends   []string
	stops   int
}

func (f *fakeController) Loading() bool { return f.loading }
func (f *fakeController) CanSend() bool { return !f.loading }
func (f *fakeController) Send(_ context.Context, text string) error {
	f.sends = append(f.sends, text)
	return nil
}
func (f *fakeController) Stop() { f.stops++ }

func TestOrchestratorRoutesByMode(t *testing.T) {
	local := &fakeController{name: "local"}
	remote := &fakeController{name: "remote", loading: true}
	o := NewOrchestrator(ModeLocal, local, remote)

	o.Send(context.Background(), "to local")
	if len(local.sends) != 1 || len(remote.sends) != 0 {
		t.Fatalf("local sends = %v, remote sends = %v", local.sends, remote.sends)
	}
	if !o.CanSend() {
		t.Error("local controller is idle, CanSend should be true")
	}

	o.SetMode(ModeRemote)
	if o.Mode() != ModeRemote {
		t.Fatalf("mode = %v", o.Mode())
	}
	o.Send(context.Background(), "to remote")
	if len(remote.sends) != 1 {
		t.Errorf("remote sends = %v", remote.sends)
	}
	if o.CanSend() {
		t.Error("remote controller is loading, CanSend should be false")
	}
}

func TestOrchestratorSetModeStopsPrevious(t *testing.T) {
	local := &fakeController{name: "local"}
	remote := &fakeController{name: "remote"}
	o := NewOrchestrator(ModeLocal, local, remote)

	o.SetMode(ModeRemote)
	if local.stops != 1 {
		t.Errorf("local stops = %d, want 1", local.stops)
	}

	o.SetMode(ModeRemote)
	if remote.stops != 0 {
		t.Errorf("switching to the active mode must not stop it, stops = %d", remote.stops)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("local"); err != nil || m != ModeLocal {
		t.Errorf("ParseMode(local) = %v, %v", m, err)
	}
	if m, err := ParseMode("remote"); err != nil || m != ModeRemote {
		t.Errorf("ParseMode(remote) = %v, %v", m, err)
	}
	if _, err := ParseMode("webgpu"); err == nil {
		t.Error("ParseMode(webgpu) should fail")
	}
}
