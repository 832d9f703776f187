package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Phase is a normalized initialization phase. Provider progress text
// varies wildly; callers get at least download / load / ready.
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseLoad     Phase = "load"
	PhaseReady    Phase = "ready"
)

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// NormalizeProgress maps raw provider progress text to a phase and a
// human-readable status line, surfacing the download percentage when it
// can be parsed out.
func NormalizeProgress(raw string) (Phase, string) {
	lower := strings.ToLower(raw)

	switch {
	case strings.Contains(lower, "download") || strings.Contains(lower, "fetch"):
		if m := percentPattern.FindStringSubmatch(raw); m != nil {
			pct, _ := strconv.Atoi(m[1])
			text := fmt.Sprintf("downloading model data (%d%%)", pct)
			if pct > 50 {
				text += " - almost done"
			} else if pct > 20 {
				text += " - going well"
			}
			return PhaseDownload, text
		}
		return PhaseDownload, "downloading model data"

	case strings.Contains(lower, "compil") || strings.Contains(lower, "load"):
		return PhaseLoad, "loading model"

	case strings.Contains(lower, "ready") || strings.Contains(lower, "complete") || strings.Contains(lower, "finish"):
		return PhaseReady, "model ready"

	default:
		return PhaseLoad, raw
	}
}
