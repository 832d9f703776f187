package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/chat"
	"github.com/webchat-ai/webchat/internal/config"
	"github.com/webchat-ai/webchat/internal/engine"
	"github.com/webchat-ai/webchat/internal/kv"
	"github.com/webchat-ai/webchat/internal/session"
	"github.com/webchat-ai/webchat/internal/ui"
)

// app bundles the wired-up components a command operates on.
type app struct {
	cfg      *config.Config
	store    kv.Store
	sessions *session.Store
	local    *chat.LocalController
	orch     *chat.Orchestrator
	styles   *ui.Styles
	logger   *zap.Logger
}

// pauseDownloadIfInitializing persists the download-paused flag when the
// user walks away while the local engine is still being created; the
// next run restores it and resumes on the first send. Reports whether
// anything was paused.
func (a *app) pauseDownloadIfInitializing(ctx context.Context) bool {
	if a.orch.Mode() != chat.ModeLocal || !a.local.PauseDownload() {
		return false
	}
	if err := a.store.Set(ctx, kv.KeyDownloadPaused, "true"); err != nil {
		a.logger.Warn("persisting download-paused flag failed", zap.Error(err))
	}
	return true
}

// newApp loads config, opens storage, applies persisted preferences, and
// wires both controllers behind an orchestrator.
func newApp(ctx context.Context, status func(string)) (*app, error) {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(flagEngine, flagModel)

	store := openStore(logger)
	applyPreferences(ctx, store, cfg, logger)
	// A flag explicitly wins over the stored preference.
	cfg.ApplyOverrides(flagEngine, flagModel)
	cfg.Normalize()

	mode, err := chat.ParseMode(cfg.Engine)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(ctx, store, logger)

	registry := engine.NewRegistry()
	manager := engine.NewManager(registry, engine.LocalFactory(cfg.Local.BaseURL, logger), logger)

	streamCfg := resolveStreamConfig(cfg)
	local := chat.NewLocalController(streamCfg, cfg.Local.Model, manager, sessions, status, logger)
	remote := chat.NewRemoteController(streamCfg, chat.RemoteAPIConfig{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
		Model:   cfg.Remote.Model,
	}, sessions, logger)

	if paused, _, err := store.Get(ctx, kv.KeyDownloadPaused); err == nil && paused == "true" {
		local.SetDownloadPaused(true)
		store.Delete(ctx, kv.KeyDownloadPaused)
	}

	theme := ui.ThemeDark
	if stored, ok, err := store.Get(ctx, kv.KeyTheme); err == nil && ok {
		theme = stored
	}

	return &app{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		local:    local,
		orch:     chat.NewOrchestrator(mode, local, remote),
		styles:   ui.NewStyles(os.Stdout, theme),
		logger:   logger,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.logger.Sync()
}

// openStore opens the durable store, degrading to in-memory state when
// the database cannot be opened.
func openStore(logger *zap.Logger) kv.Store {
	path, err := kv.DefaultDBPath()
	if err == nil {
		var store *kv.SQLiteStore
		if store, err = kv.NewSQLiteStore(path); err == nil {
			return store
		}
	}
	logger.Warn("durable storage unavailable, state will not persist", zap.Error(err))
	fmt.Fprintln(os.Stderr, "warning: durable storage unavailable, state will not persist")
	return kv.NewMemoryStore()
}

// applyPreferences layers persisted user preferences over the loaded
// config. Unreadable values are ignored.
func applyPreferences(ctx context.Context, store kv.Store, cfg *config.Config, logger *zap.Logger) {
	if mode, ok, err := store.Get(ctx, kv.KeyEngineMode); err == nil && ok {
		if _, err := chat.ParseMode(mode); err == nil {
			cfg.Engine = mode
		} else {
			logger.Warn("ignoring stored engine mode", zap.String("value", mode))
		}
	}

	if model, ok, err := store.Get(ctx, kv.KeyLocalModel); err == nil && ok && model != "" {
		cfg.Local.Model = model
	}

	if blob, ok, err := store.Get(ctx, kv.KeyAPIConfig); err == nil && ok {
		var api config.RemoteConfig
		if err := json.Unmarshal([]byte(blob), &api); err != nil {
			logger.Warn("ignoring stored API config", zap.Error(err))
		} else {
			if api.BaseURL != "" {
				cfg.Remote.BaseURL = api.BaseURL
			}
			if api.APIKey != "" {
				cfg.Remote.APIKey = api.APIKey
			}
			if api.Model != "" {
				cfg.Remote.Model = api.Model
			}
		}
	}
}

// resolveStreamConfig applies non-zero config overrides to the default
// stream tuning.
func resolveStreamConfig(cfg *config.Config) chat.StreamConfig {
	out := chat.DefaultStreamConfig()
	if cfg.Stream.MaxLength > 0 {
		out.MaxLength = cfg.Stream.MaxLength
	}
	if cfg.Stream.DuplicateThreshold > 0 {
		out.DuplicateThreshold = cfg.Stream.DuplicateThreshold
	}
	if cfg.Stream.QualityCheckInterval > 0 {
		out.QualityCheckInterval = cfg.Stream.QualityCheckInterval
	}
	if cfg.Stream.MinChunkLength > 0 {
		out.MinChunkLength = cfg.Stream.MinChunkLength
	}
	if cfg.Stream.MaxConsecutiveDuplicates > 0 {
		out.MaxConsecutiveDuplicates = cfg.Stream.MaxConsecutiveDuplicates
	}
	if cfg.Stream.FlushChars > 0 {
		out.FlushChars = cfg.Stream.FlushChars
	}
	if cfg.Stream.FlushInterval > 0 {
		out.FlushInterval = cfg.Stream.FlushInterval
	}
	return out
}
