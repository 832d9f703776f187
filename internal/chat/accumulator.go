package chat

import (
	"fmt"
	"time"

	"github.com/webchat-ai/webchat/internal/quality"
)

// stopReason records why the accumulator stopped accepting deltas.
type stopReason int

const (
	stopNone stopReason = iota
	stopLength
	stopDuplicates
	stopQuality
)

// accumulator applies the streaming heuristics to incoming deltas and
// batches session updates: length cap with boundary-aware truncation,
// duplicate suppression over the trailing window, periodic quality
// checks, and flushing whichever comes first of a character threshold or
// a time interval. The first delta of a response always flushes
// immediately.
type accumulator struct {
	cfg   StreamConfig
	flush func(content string)

	content    string
	pending    string
	chunkCount int
	duplicates int
	started    bool
	lastFlush  time.Time

	reason        stopReason
	qualityReason string
}

func newAccumulator(cfg StreamConfig, flush func(content string)) *accumulator {
	return &accumulator{cfg: cfg, flush: flush}
}

// Content returns everything flushed so far.
func (a *accumulator) Content() string {
	return a.content
}

// Push feeds one delta through the heuristics. It returns false once the
// stream should stop being consumed.
func (a *accumulator) Push(delta string) bool {
	if a.reason != stopNone {
		return false
	}
	a.chunkCount++

	deltaLen := runeLen(delta)
	if deltaLen == 0 || deltaLen < a.cfg.MinChunkLength {
		return true
	}

	// Length cap. Truncate the final delta at a sentence or word
	// boundary when enough budget remains for that to be useful.
	total := runeLen(a.content) + runeLen(a.pending)
	if total+deltaLen > a.cfg.MaxLength {
		remaining := a.cfg.MaxLength - total
		if remaining > 10 {
			truncated := quality.TruncateAtSentence(delta, remaining)
			if runeLen(truncated) > 5 {
				a.pending += truncated
			}
		}
		a.flushPending()
		a.reason = stopLength
		return false
	}

	// Duplicate suppression against the trailing window.
	if quality.IsDuplicate(a.content+a.pending, delta, a.cfg.DuplicateThreshold) {
		a.duplicates++
		if a.duplicates >= a.cfg.MaxConsecutiveDuplicates {
			a.flushPending()
			a.reason = stopDuplicates
			return false
		}
		return true
	}
	a.duplicates = 0

	// Periodic quality check over what the message would become.
	if a.cfg.QualityCheckInterval > 0 && a.chunkCount%a.cfg.QualityCheckInterval == 0 {
		if check := quality.CheckContent(a.content + a.pending + delta); !check.Valid {
			a.flushPending()
			a.reason = stopQuality
			a.qualityReason = check.Reason
			return false
		}
	}

	a.pending += delta

	if !a.started {
		// No perceived latency before the first token.
		a.started = true
		a.flushPending()
		return true
	}

	if runeLen(a.pending) >= a.cfg.FlushChars || time.Since(a.lastFlush) >= a.cfg.FlushInterval {
		a.flushPending()
	}
	return true
}

// Finish flushes whatever is buffered and runs the final quality check
// over the complete message. A failing final check replaces the content
// with a human-readable notice. It returns the final content.
func (a *accumulator) Finish() string {
	a.flushPending()

	// A mid-stream quality stop already truncated the response; the
	// partial content is what the user keeps.
	if a.reason == stopNone || a.reason == stopLength || a.reason == stopDuplicates {
		if check := quality.CheckContent(a.content); !check.Valid {
			a.content = fmt.Sprintf("The response failed a quality check (%s). Please try again.", check.Reason)
			a.flush(a.content)
		}
	}
	return a.content
}

func (a *accumulator) flushPending() {
	if a.pending == "" {
		return
	}
	a.content += a.pending
	a.pending = ""
	a.flush(a.content)
	a.lastFlush = time.Now()
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
