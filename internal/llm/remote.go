package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const dataPrefix = "data: "

// RemoteEngine streams chat completions from an OpenAI-compatible
// chat-completions endpoint over SSE.
type RemoteEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemoteEngine creates a remote engine for the given endpoint.
// A nil logger is replaced with a no-op logger.
func NewRemoteEngine(baseURL, apiKey string, logger *zap.Logger) *RemoteEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteEngine{
		baseURL: baseURL,
		apiKey:  apiKey,
		// No overall timeout: streaming responses are open-ended.
		// Cancellation happens through the request context.
		client: &http.Client{Timeout: 0},
		logger: logger,
	}
}

// CompletionsURL returns the resolved chat-completions endpoint.
func (e *RemoteEngine) CompletionsURL() string {
	return strings.TrimSuffix(e.baseURL, "/") + "/v1/chat/completions"
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ChatStream issues the streaming request and returns a Stream of deltas.
func (e *RemoteEngine) ChatStream(ctx context.Context, req Request) (Stream, error) {
	body, err := json.Marshal(completionRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.CompletionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completions request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("chat completions failed: %d - %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		defer resp.Body.Close()
		start := time.Now()
		if err := e.consumeSSE(ctx, resp.Body, events); err != nil {
			return err
		}
		e.logger.Debug("remote stream finished", zap.Duration("elapsed", time.Since(start)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- Event{Type: EventDone}:
		}
		return nil
	}), nil
}

// consumeSSE reads the response body line by line and emits text deltas.
// A malformed payload on a single line is logged and skipped; it never
// fails the whole response.
func (e *RemoteEngine) consumeSSE(ctx context.Context, body io.Reader, events chan<- Event) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := line[len(dataPrefix):]
		if data == "[DONE]" {
			// End-of-stream sentinel, not an error.
			continue
		}

		var c chunk
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			e.logger.Warn("skipping malformed stream line", zap.String("data", data), zap.Error(err))
			continue
		}
		delta := c.deltaText()
		if delta == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- Event{Type: EventTextDelta, Text: delta}:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
