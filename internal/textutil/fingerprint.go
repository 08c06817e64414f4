package textutil

import (
	"math"
	"strings"
)

// Fingerprint is a bag-of-words vector over normalized text. The zero value
// is empty and matches nothing.
type Fingerprint struct {
	counts map[string]int
	norm   float64
}

// NewFingerprint builds the word-count vector for text.
func NewFingerprint(text string) Fingerprint {
	words := Tokenize(text)
	if len(words) == 0 {
		return Fingerprint{}
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	var sq int
	for _, c := range counts {
		sq += c * c
	}
	return Fingerprint{counts: counts, norm: math.Sqrt(float64(sq))}
}

// Tokenize splits normalized text into words.
func Tokenize(text string) []string {
	return strings.Fields(NormalizeText(text))
}

// Empty reports whether the fingerprint holds no words.
func (f Fingerprint) Empty() bool { return f.norm == 0 }

// Words returns the number of distinct words.
func (f Fingerprint) Words() int { return len(f.counts) }

// Similarity is the cosine of the angle between the two word vectors, in
// [0, 1]. Either side being empty gives 0.
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	if f.Empty() || other.Empty() {
		return 0
	}
	small, large := f.counts, other.counts
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot int
	for w, c := range small {
		dot += c * large[w]
	}
	return float64(dot) / (f.norm * other.norm)
}
