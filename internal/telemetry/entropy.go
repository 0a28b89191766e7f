package telemetry

import (
	"math"
	"slices"
	"unicode/utf8"
)

// ShannonEntropy returns the Shannon entropy of text in bits per character,
// computed over the distribution of its runes. Empty text has zero entropy.
func ShannonEntropy(text string) float64 {
	if text == "" {
		return 0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range text {
		counts[r]++
		total++
	}

	// Sum in rune order so the result is bit-for-bit reproducible.
	runes := make([]rune, 0, len(counts))
	for r := range counts {
		runes = append(runes, r)
	}
	slices.Sort(runes)

	n := float64(total)
	entropy := 0.0
	for _, r := range runes {
		p := float64(counts[r]) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// ResponseLength returns the length of text in characters (runes).
func ResponseLength(text string) int64 {
	return int64(utf8.RuneCountInString(text))
}
