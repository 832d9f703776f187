// Package serve implements the API proxy: a single pass-through endpoint
// that forwards chat-completions requests to the upstream provider,
// attaching the server-side credential so clients never hold one.
package serve

import (
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

// Options configures the proxy server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// UpstreamURL is the base URL of the OpenAI-compatible provider.
	UpstreamURL string
	// APIKey is the server-side credential attached to upstream requests.
	APIKey string
	// DefaultModel is injected when a request names no model.
	DefaultModel string
}

// Server proxies POST /api/chat to the upstream chat-completions API.
type Server struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
}

func NewServer(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts: opts,
		// No overall timeout: streamed completions can run for minutes.
		client: &http.Client{},
		logger: logger,
	}
}

// Handler returns the HTTP handler for the proxy endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe runs the proxy until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("proxy listening", zap.String("addr", s.opts.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// chatRequest is the subset of the request body the proxy inspects;
// everything else passes through untouched.
type chatRequest struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	setCORS(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.opts.APIKey == "" {
		s.logger.Error("proxy has no upstream credential configured")
		writeError(w, http.StatusInternalServerError, "server is not configured with an API key")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Messages == nil {
		writeError(w, http.StatusBadRequest, "messages must be a non-empty array")
		return
	}

	// Inject the default model without disturbing unknown fields.
	if req.Model == "" && s.opts.DefaultModel != "" {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err == nil {
			raw["model"], _ = json.Marshal(s.opts.DefaultModel)
			if patched, err := json.Marshal(raw); err == nil {
				body = patched
			}
		}
	}

	upstream := strings.TrimSuffix(s.opts.UpstreamURL, "/") + "/v1/chat/completions"
	proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	proxyReq.Header.Set("Content-Type", "application/json")
	proxyReq.Header.Set("Authorization", "Bearer "+s.opts.APIKey)

	resp, err := s.client.Do(proxyReq)
	if err != nil {
		s.logger.Error("upstream request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	// Pass the upstream status and body through verbatim, streaming SSE
	// as it arrives.
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("upstream body read ended", zap.Error(err))
			}
			return
		}
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
