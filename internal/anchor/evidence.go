package anchor

import "fmt"

// Feature is a per-kind aggregation of unique anchor values found in a
// document, ready to persist as a DocEvidenceFeature row.
type Feature struct {
	Kind  Kind
	Count int
}

// EvidenceScore computes the weighted evidence score for a set of matches:
// a weighted sum of unique (kind, normalized) anchor values, capped at
// EvidenceCap (spec.md §4.5).
func EvidenceScore(matches []Match) (float64, []Feature) {
	unique := make(map[string]bool)
	counts := make(map[Kind]int)
	order := []Kind{}

	var score float64
	for _, m := range matches {
		key := fmt.Sprintf("%s|%s", m.Kind, m.Normalized)
		if unique[key] {
			continue
		}
		unique[key] = true
		score += Weight[m.Kind]
		if counts[m.Kind] == 0 {
			order = append(order, m.Kind)
		}
		counts[m.Kind]++
	}
	if score > EvidenceCap {
		score = EvidenceCap
	}

	features := make([]Feature, 0, len(order))
	for _, k := range order {
		features = append(features, Feature{Kind: k, Count: counts[k]})
	}
	return score, features
}
