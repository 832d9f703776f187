package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webchat-ai/webchat/internal/config"
	"github.com/webchat-ai/webchat/internal/serve"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat API proxy",
	Long: `Run an HTTP proxy that forwards POST /api/chat to the configured
remote provider, attaching the server-side API key so clients never
need one.

Examples:
  webchat serve
  webchat serve --addr :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	addr := cfg.Serve.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	upstream := cfg.Serve.UpstreamURL
	if upstream == "" {
		upstream = cfg.Remote.BaseURL
	}

	server := serve.NewServer(serve.Options{
		Addr:         addr,
		UpstreamURL:  upstream,
		APIKey:       cfg.Remote.APIKey,
		DefaultModel: cfg.Remote.Model,
	}, logger)

	fmt.Printf("proxy listening on %s, forwarding to %s\n", addr, upstream)
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
