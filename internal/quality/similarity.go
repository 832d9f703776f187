package quality

// duplicateWindow is how much trailing content is compared against an
// incoming chunk when looking for degenerate repetition.
const duplicateWindow = 50

// LevenshteinDistance computes the edit distance between two strings,
// counted in runes.
func LevenshteinDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(ra)+1)
	cur := make([]int, len(ra)+1)
	for i := 0; i <= len(ra); i++ {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		cur[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[i] = min3(cur[i-1]+1, prev[i]+1, prev[i-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(ra)]
}

// Similarity returns a normalized similarity in [0,1]:
// 1 - distance/max(len), with length measured in runes.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longer, shorter := a, b
	if runeLen(b) > runeLen(a) {
		longer, shorter = b, a
	}
	longerLen := runeLen(longer)
	if longerLen == 0 {
		return 1
	}
	distance := LevenshteinDistance(longer, shorter)
	return float64(longerLen-distance) / float64(longerLen)
}

// IsDuplicate reports whether chunk repeats the tail of text. Chunks
// shorter than 3 runes are never considered duplicates.
func IsDuplicate(text, chunk string, threshold float64) bool {
	if text == "" || chunk == "" || runeLen(chunk) < 3 {
		return false
	}
	return Similarity(lastRunes(text, duplicateWindow), chunk) > threshold
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// lastRunes returns the trailing n runes of s.
func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
