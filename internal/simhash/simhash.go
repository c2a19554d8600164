// Package simhash computes and compares 64-bit SimHash fingerprints of
// document text, per spec.md §4.6: NFKD decomposition with combining marks
// stripped, lowercasing and non-alphanumeric folding for tokenization,
// stop-word filtering, 3-token shingles plus leading unigrams, a stable
// 64-bit digest per feature (the first 8 bytes of an unkeyed BLAKE2b-512
// sum; no key is used), and bit-majority voting.
//
// Grounded on original_source/backend/app/core/similarity.py, which this
// package mirrors feature-for-feature (including its blake2b digest
// choice), down to its stop-word list.
package simhash

import (
	"math/bits"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

var stopwords = map[string]bool{
	"a": true, "ao": true, "aos": true, "as": true, "com": true, "como": true,
	"contra": true, "da": true, "das": true, "de": true, "do": true, "dos": true,
	"e": true, "em": true, "entre": true, "na": true, "nas": true, "no": true,
	"nos": true, "o": true, "os": true, "ou": true, "para": true, "pela": true,
	"pelas": true, "pelo": true, "pelos": true, "por": true, "que": true,
	"sem": true, "sob": true, "sobre": true, "uma": true, "um": true,
	"uns": true, "umas": true, "daquele": true, "daquela": true, "este": true,
	"esta": true, "isso": true, "esse": true, "essa": true,
}

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeText applies NFKD normalization, strips combining marks, lowers
// case, and collapses runs of non-alphanumerics to single spaces.
func NormalizeText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = norm.NFKD.String(t)
	t = stripCombining(t)
	t = nonAlnumRun.ReplaceAllString(t, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(t, " "))
}

func stripCombining(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isCombining(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isCombining reports whether r is a Unicode combining diacritical mark,
// using the same Mn-range check the original relies on via
// unicodedata.combining.
func isCombining(r rune) bool {
	return (r >= 0x0300 && r <= 0x036F) || // Combining Diacritical Marks
		(r >= 0x1AB0 && r <= 0x1AFF) ||
		(r >= 0x1DC0 && r <= 0x1DFF) ||
		(r >= 0x20D0 && r <= 0x20FF) ||
		(r >= 0xFE20 && r <= 0xFE2F)
}

// buildFeatures tokenizes text into the shingle+unigram feature set used
// for SimHash voting (spec.md §4.6).
func buildFeatures(text string) []string {
	norm := NormalizeText(text)
	if norm == "" {
		return nil
	}

	var tokens []string
	for _, t := range strings.Split(norm, " ") {
		if len(t) >= 3 && !stopwords[t] {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	var features []string
	for i := 0; i+2 < len(tokens); i++ {
		features = append(features, strings.Join(tokens[i:i+3], " "))
	}
	max := 24
	if len(tokens) < max {
		max = len(tokens)
	}
	features = append(features, tokens[:max]...)
	return features
}

func featureDigest(feature string) uint64 {
	sum := blake2b.Sum512([]byte(feature))
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(sum[i])
	}
	return v
}

// Compute returns the 64-bit SimHash fingerprint of text, or (0, false) if
// text yields no indexable features.
func Compute(text string) (uint64, bool) {
	features := buildFeatures(text)
	if len(features) == 0 {
		return 0, false
	}

	var votes [64]int
	for _, f := range features {
		h := featureDigest(f)
		for i := 0; i < 64; i++ {
			if (h>>uint(i))&1 == 1 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var out uint64
	for i := 0; i < 64; i++ {
		if votes[i] >= 0 {
			out |= 1 << uint(i)
		}
	}
	return out, true
}

// HammingDistance64 returns the number of differing bits between a and b.
func HammingDistance64(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// IsNearDuplicate reports whether a and b are within threshold Hamming
// distance of each other (spec.md §4.6 default threshold is 12).
func IsNearDuplicate(a, b uint64, threshold int) bool {
	return HammingDistance64(a, b) <= threshold
}

// Candidate is a document eligible for proximity lookup.
type Candidate struct {
	DocumentID int64
	SimHash    uint64
}

// NearestWithinThreshold returns the candidate with the smallest Hamming
// distance to target that is within threshold, ties broken by smallest
// document id (spec.md §4.6).
func NearestWithinThreshold(target uint64, candidates []Candidate, threshold int) (Candidate, bool) {
	best := Candidate{}
	bestDist := threshold + 1
	found := false

	for _, c := range candidates {
		d := HammingDistance64(target, c.SimHash)
		if d > threshold {
			continue
		}
		if !found || d < bestDist || (d == bestDist && c.DocumentID < best.DocumentID) {
			best = c
			bestDist = d
			found = true
		}
	}
	return best, found
}
