package quality

import (
	"strings"
	"unicode"
)

// maxCharRun is the longest run of one repeated character accepted
// before content is rejected as degenerate.
const maxCharRun = 5

// CheckResult is the outcome of a content quality check.
type CheckResult struct {
	Valid  bool
	Reason string
}

// CheckContent validates accumulated response text. It rejects empty
// content, long runs of a single repeated character, and control
// characters outside the printable/whitespace ranges.
func CheckContent(content string) CheckResult {
	if strings.TrimSpace(content) == "" {
		return CheckResult{Valid: false, Reason: "content is empty"}
	}

	run := 0
	var last rune = -1
	for _, r := range content {
		if r == last {
			run++
			if run > maxCharRun {
				return CheckResult{Valid: false, Reason: "excessive repeated characters"}
			}
		} else {
			last = r
			run = 1
		}

		if isDisallowedControl(r) {
			return CheckResult{Valid: false, Reason: "contains control characters"}
		}
	}

	return CheckResult{Valid: true}
}

// isDisallowedControl reports whether r is a control character other
// than ordinary whitespace (tab, newline, carriage return).
func isDisallowedControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

// sentence terminators recognized for truncation, Latin and CJK.
func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// TruncateAtSentence shortens text to at most maxLength runes, preferring
// a sentence boundary past 70% of the limit, then a word boundary past
// 80%, then a hard cut with an ellipsis.
func TruncateAtSentence(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	truncated := runes[:maxLength]

	lastSentenceEnd := -1
	for i, r := range truncated {
		if isSentenceEnd(r) {
			end := i + 1
			for end < len(truncated) && unicode.IsSpace(truncated[end]) {
				end++
			}
			lastSentenceEnd = end
		}
	}
	if lastSentenceEnd > maxLength*7/10 {
		return string(truncated[:lastSentenceEnd])
	}

	lastWordEnd := -1
	for i, r := range truncated {
		if unicode.IsSpace(r) {
			lastWordEnd = i
		}
	}
	if lastWordEnd > maxLength*8/10 {
		return string(truncated[:lastWordEnd]) + "..."
	}

	return string(truncated) + "..."
}
