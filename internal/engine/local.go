package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/llm"
)

// LocalFactory returns a Factory backed by a llama-server compatible
// runtime at baseURL. Creation waits for the runtime to finish loading
// the requested model; the engine handle it returns speaks the same
// OpenAI-compatible streaming protocol as the remote backend, so the
// runtime's internals stay a black box here.
func LocalFactory(baseURL string, logger *zap.Logger) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, model string, report func(raw string)) (llm.Engine, error) {
		report(fmt.Sprintf("fetching model %s", model))

		if err := waitForRuntime(ctx, client, baseURL, report); err != nil {
			return nil, err
		}

		report("load complete")
		return llm.NewRemoteEngine(baseURL, "", logger), nil
	}
}

// healthStatus is the llama-server /health payload.
type healthStatus struct {
	Status string `json:"status"` // "ok", "loading model", "error"
	Error  string `json:"error,omitempty"`
}

// waitForRuntime polls the runtime's health endpoint until the model is
// loaded, mapping terminal statuses onto the initialization error
// taxonomy.
func waitForRuntime(ctx context.Context, client *http.Client, baseURL string, report func(raw string)) error {
	healthURL := strings.TrimSuffix(baseURL, "/") + "/health"

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		status, err := probeHealth(ctx, client, healthURL)
		switch {
		case err != nil:
			// Runtime not reachable yet; network-class, retry until the
			// context gives up.
			report("fetching runtime, waiting for it to come up")
		case status.Status == "ok":
			return nil
		case status.Status == "loading model":
			report("loading model into runtime")
		case strings.Contains(strings.ToLower(status.Error), "no space"),
			strings.Contains(strings.ToLower(status.Error), "quota"):
			return fmt.Errorf("%w: %s", ErrStorageQuota, status.Error)
		case status.Status == "error":
			return fmt.Errorf("%w: %s", ErrBackendUnsupported, status.Error)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for local runtime: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func probeHealth(ctx context.Context, client *http.Client, url string) (healthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return healthStatus{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return healthStatus{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return healthStatus{}, err
	}

	var status healthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		// Older runtimes answer plain 200/503 without a JSON body.
		if resp.StatusCode == http.StatusOK {
			return healthStatus{Status: "ok"}, nil
		}
		return healthStatus{Status: "loading model"}, nil
	}
	return status, nil
}
