package quality

import (
	"strings"
	"testing"
)

func TestCheckContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		valid   bool
	}{
		{name: "normal text", content: "This is a perfectly fine answer.", valid: true},
		{name: "empty", content: "", valid: false},
		{name: "whitespace only", content: "   \n\t ", valid: false},
		{name: "repeated characters", content: "well aaaaaa that is odd", valid: false},
		{name: "five repeats allowed", content: "hmmmm, maybe", valid: true},
		{name: "control character", content: "bad\x00byte", valid: false},
		{name: "bell character", content: "ring\x07ring", valid: false},
		{name: "tabs and newlines fine", content: "line one\n\tline two\r\n", valid: true},
		{name: "cjk text", content: "你好，世界。今天天气不错。", valid: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := CheckContent(tc.content)
			if result.Valid != tc.valid {
				t.Errorf("CheckContent(%q).Valid=%v, want %v (reason=%q)", tc.content, result.Valid, tc.valid, result.Reason)
			}
			if !result.Valid && result.Reason == "" {
				t.Error("invalid result must carry a reason")
			}
		})
	}
}

func TestTruncateAtSentenceShortTextUnchanged(t *testing.T) {
	if got := TruncateAtSentence("short", 100); got != "short" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestTruncateAtSentenceBoundary(t *testing.T) {
	// Sentence end lands past 70% of the limit, so the cut is clean.
	text := "First sentence here. Second sentence trails on and on and on"
	got := TruncateAtSentence(text, 25)
	if got != "First sentence here. " {
		t.Errorf("got %q, want sentence-boundary cut", got)
	}
}

func TestTruncateAtWordBoundary(t *testing.T) {
	// No sentence end, but a space past 80% of the limit.
	text := "wordswithoutanyperiods and then some more trailing words here"
	got := TruncateAtSentence(text, 25)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("got %q, want ellipsis suffix", got)
	}
	trimmed := strings.TrimSuffix(got, "...")
	if strings.HasSuffix(trimmed, " ") {
		t.Errorf("got %q, cut should land on the word boundary", got)
	}
	if len([]rune(trimmed)) > 25 {
		t.Errorf("truncated length %d exceeds limit", len([]rune(trimmed)))
	}
}

func TestTruncateHardCut(t *testing.T) {
	text := strings.Repeat("a", 50)
	got := TruncateAtSentence(text, 20)
	if got != strings.Repeat("a", 20)+"..." {
		t.Errorf("got %q, want hard cut with ellipsis", got)
	}
}

func TestTruncateCJKSentence(t *testing.T) {
	text := "你好。今天天气很好。我们去公园散步吧然后再去吃饭"
	got := TruncateAtSentence(text, 12)
	if got != "你好。今天天气很好。" {
		t.Errorf("got %q, want CJK sentence-boundary cut", got)
	}
}
