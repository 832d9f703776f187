package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/kv"
)

// Store is the single source of truth for sessions. All mutations hold
// the store lock, re-establish the pointer invariant (the current ID
// always references an existing session and the list is never empty),
// persist the new state, and then notify observers.
type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	logger   *zap.Logger
	sessions []*Session
	current  string
	onChange []func()
}

// persistedState is the JSON blob written under kv.KeySessions.
type persistedState struct {
	Sessions  []*Session `json:"sessions"`
	CurrentID string     `json:"currentSessionId"`
}

// NewStore loads persisted sessions from storage, falling back to a
// fresh default session when nothing (or garbage) is stored.
func NewStore(ctx context.Context, store kv.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{kv: store, logger: logger}

	blob, ok, err := store.Get(ctx, kv.KeySessions)
	if err != nil {
		logger.Warn("loading sessions failed, starting fresh", zap.Error(err))
	} else if ok {
		var state persistedState
		if err := json.Unmarshal([]byte(blob), &state); err != nil {
			logger.Warn("stored sessions unreadable, starting fresh", zap.Error(err))
		} else {
			s.sessions = state.Sessions
			s.current = state.CurrentID
		}
	}

	s.mu.Lock()
	s.repairLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()
	return s
}

// OnChange registers an observer invoked after every mutation. The
// callback runs outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	observers := make([]func(), len(s.onChange))
	copy(observers, s.onChange)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// repairLocked re-establishes the invariant: a non-empty session list
// and a current pointer referencing one of its elements.
func (s *Store) repairLocked() {
	if len(s.sessions) == 0 {
		fresh := newDefaultSession()
		s.sessions = []*Session{fresh}
		s.current = fresh.ID
		return
	}
	for _, sess := range s.sessions {
		if sess.ID == s.current {
			return
		}
	}
	s.current = s.sessions[0].ID
}

func (s *Store) persistLocked(ctx context.Context) {
	blob, err := json.Marshal(persistedState{Sessions: s.sessions, CurrentID: s.current})
	if err != nil {
		s.logger.Error("marshal sessions", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, kv.KeySessions, string(blob)); err != nil {
		s.logger.Error("persist sessions", zap.Error(err))
	}
}

// CreateSession builds a session with the default system message and
// greeting, prepends it, and makes it current.
func (s *Store) CreateSession(ctx context.Context) Session {
	s.mu.Lock()
	fresh := newDefaultSession()
	s.sessions = append([]*Session{fresh}, s.sessions...)
	s.current = fresh.ID
	s.persistLocked(ctx)
	snapshot := *fresh
	s.mu.Unlock()

	s.notify()
	return snapshot
}

// SwitchSession changes the current pointer. Switching to an unknown
// session is a no-op.
func (s *Store) SwitchSession(ctx context.Context, id string) {
	s.mu.Lock()
	found := false
	for _, sess := range s.sessions {
		if sess.ID == id {
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		s.logger.Warn("switch to unknown session ignored", zap.String("id", id))
		return
	}
	s.current = id
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify()
}

// DeleteSession removes one session, reassigning the current pointer if
// needed. Deleting the last session leaves a fresh default session.
func (s *Store) DeleteSession(ctx context.Context, id string) {
	s.BatchDelete(ctx, []string{id})
}

// BatchDelete removes all matching sessions in one mutation.
func (s *Store) BatchDelete(ctx context.Context, ids []string) {
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	s.mu.Lock()
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if !doomed[sess.ID] {
			kept = append(kept, sess)
		}
	}
	s.sessions = kept
	s.repairLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify()
}

// UpdateMessages replaces a session's message list, bumps updatedAt, and
// derives the title from the first user message.
func (s *Store) UpdateMessages(ctx context.Context, sessionID string, messages []Message) {
	s.mu.Lock()
	for _, sess := range s.sessions {
		if sess.ID != sessionID {
			continue
		}
		sess.Messages = messages
		sess.UpdatedAt = time.Now()
		sess.Title = deriveTitle(sess.Title, messages)
		break
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify()
}

// CurrentSession returns a copy of the current session.
func (s *Store) CurrentSession() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == s.current {
			return *sess
		}
	}
	// Unreachable while the invariant holds.
	return *s.sessions[0]
}

// Sessions returns copies of all sessions, newest first.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out
}

// CurrentID returns the current session ID.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
