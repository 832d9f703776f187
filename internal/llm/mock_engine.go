package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTurn is a single scripted response from the mock engine.
type MockTurn struct {
	Text   string        // Text to emit, chunked for realistic streaming
	Chunks []string      // Exact chunks to emit; takes precedence over Text
	Delay  time.Duration // Optional delay before the first event (for timeout tests)
	Error  error         // Return this error instead of responding
}

// MockEngine is a configurable engine for testing. It returns scripted
// responses and records all requests for verification.
type MockEngine struct {
	turns     []MockTurn
	turnIndex int
	Requests  []Request
	mu        sync.Mutex
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// AddTurn adds a response turn and returns the engine for chaining.
func (m *MockEngine) AddTurn(t MockTurn) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

// AddTextResponse adds a simple text response turn.
func (m *MockEngine) AddTextResponse(text string) *MockEngine {
	return m.AddTurn(MockTurn{Text: text})
}

// AddChunks adds a turn that emits the given chunks verbatim.
func (m *MockEngine) AddChunks(chunks ...string) *MockEngine {
	return m.AddTurn(MockTurn{Chunks: chunks})
}

// RequestCount returns the number of requests the engine has served.
func (m *MockEngine) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// ChatStream implements Engine.
func (m *MockEngine) ChatStream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)

	if m.turnIndex >= len(m.turns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock engine: no more turns configured (turn %d, have %d)", m.turnIndex, len(m.turns))
	}
	turn := m.turns[m.turnIndex]
	m.turnIndex++
	m.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, ch chan<- Event) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}

		if turn.Error != nil {
			return turn.Error
		}

		chunks := turn.Chunks
		if len(chunks) == 0 && turn.Text != "" {
			chunks = chunkText(turn.Text, 10)
		}
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- Event{Type: EventTextDelta, Text: c}:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- Event{Type: EventDone}:
		}
		return nil
	}), nil
}

// chunkText splits text into chunks of approximately the given size,
// breaking at word boundaries when possible.
func chunkText(text string, chunkSize int) []string {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}

		breakPoint := chunkSize
		for i := chunkSize; i > chunkSize/2; i-- {
			if text[i] == ' ' {
				breakPoint = i + 1
				break
			}
		}

		chunks = append(chunks, text[:breakPoint])
		text = text[breakPoint:]
	}
	return chunks
}
