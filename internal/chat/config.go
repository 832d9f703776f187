// Package chat drives send operations against either backend: it owns
// the busy-state machine, consumes token streams, applies quality and
// duplication heuristics, batches session updates, and handles
// cancellation, retry, and failure.
package chat

import "time"

// StreamConfig tunes the streaming heuristics. The defaults mirror
// long-standing tuning; none of the thresholds are known to be optimal,
// which is exactly why they live here instead of in the code paths.
type StreamConfig struct {
	// MaxLength caps the total assistant response, in runes.
	MaxLength int

	// DuplicateThreshold is the normalized similarity above which an
	// incoming chunk counts as a repeat of recent content.
	DuplicateThreshold float64

	// QualityCheckInterval runs a content quality check every N chunks.
	QualityCheckInterval int

	// MinChunkLength drops chunks shorter than this, in runes.
	MinChunkLength int

	// MaxConsecutiveDuplicates aborts the stream after this many
	// repeated chunks in a row.
	MaxConsecutiveDuplicates int

	// FlushChars flushes buffered deltas to the session once this many
	// characters accumulate.
	FlushChars int

	// FlushInterval flushes buffered deltas after this much time even if
	// FlushChars was not reached.
	FlushInterval time.Duration
}

// DefaultStreamConfig returns the standard tuning.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxLength:                20000,
		DuplicateThreshold:       0.8,
		QualityCheckInterval:     10,
		MinChunkLength:           1,
		MaxConsecutiveDuplicates: 3,
		FlushChars:               3,
		FlushInterval:            50 * time.Millisecond,
	}
}
