package chat

import (
	"context"
	"fmt"
	"sync"
)

// Mode selects which backend serves chat requests.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeRemote:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown engine mode %q", s)
	}
}

// Orchestrator presents one Controller surface and routes each call to
// the controller for the active mode. Switching modes stops whatever
// the outgoing controller was doing first.
type Orchestrator struct {
	mu     sync.Mutex
	mode   Mode
	local  Controller
	remote Controller
}

func NewOrchestrator(mode Mode, local, remote Controller) *Orchestrator {
	return &Orchestrator{mode: mode, local: local, remote: remote}
}

func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetMode switches the active backend, stopping any in-flight send on
// the previous one.
func (o *Orchestrator) SetMode(mode Mode) {
	o.mu.Lock()
	if o.mode == mode {
		o.mu.Unlock()
		return
	}
	previous := o.active()
	o.mode = mode
	o.mu.Unlock()

	previous.Stop()
}

// active returns the controller for the current mode. Callers hold o.mu.
func (o *Orchestrator) active() Controller {
	if o.mode == ModeRemote {
		return o.remote
	}
	return o.local
}

func (o *Orchestrator) current() Controller {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active()
}

func (o *Orchestrator) Loading() bool { return o.current().Loading() }

func (o *Orchestrator) CanSend() bool { return o.current().CanSend() }

func (o *Orchestrator) Send(ctx context.Context, text string) error {
	return o.current().Send(ctx, text)
}

func (o *Orchestrator) Stop() { o.current().Stop() }
