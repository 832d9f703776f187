// Package kv provides the durable key-value storage the client persists
// its state into: the session manager blob, engine preferences, theme,
// and API configuration, each under a namespaced key.
package kv

import "context"

// Store is a flat key-value store with string values. Values are JSON
// blobs by convention; callers own (de)serialization and must fall back
// to defaults when a stored value fails to parse.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Well-known keys. The prefix keeps the namespace clear of other apps
// sharing a store.
const (
	KeySessions       = "webchat:sessions"
	KeyEngineMode     = "webchat:engine-mode"
	KeyLocalModel     = "webchat:local-model"
	KeyAPIConfig      = "webchat:api-config"
	KeyTheme          = "webchat:theme"
	KeyDownloadPaused = "webchat:download-paused"
)
