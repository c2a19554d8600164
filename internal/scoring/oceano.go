package scoring

import "math"

// OceanoReason codes, stable across releases (spec.md §4.8).
const (
	ReasonOceanoEvidenceStrong       = "OCEANO_EVIDENCE_STRONG"
	ReasonOceanoCoverageLag          = "OCEANO_COVERAGE_LAG"
	ReasonOceanoEvidencePDF          = "OCEANO_EVIDENCE_PDF"
	ReasonOceanoTrustPenaltyReduced  = "OCEANO_TRUST_PENALTY_REDUCED"
	ReasonOceanoOfficialSource       = "OCEANO_OFFICIAL_SOURCE"
)

// OceanoInput is the per-event aggregate spec.md §4.8 computes
// SCORE_OCEANO_AZUL from.
type OceanoInput struct {
	EvidenceScore      float64 // max evidence_score among linked DocEvidenceFeatures
	IsOfficial         bool
	HasPDFEvidence     bool
	CoverageLagMinutes float64 // only meaningful when no tier-1 coverage yet
	TrustPenalty       float64
}

const oceanoBaseWeight = 5.0
const oceanoCap = 100.0

// CalculateOceano implements spec.md §4.8's SCORE_OCEANO_AZUL formula:
// a base weight boosted by official presence, coverage-lag, and PDF
// evidence, scaled by an evidence multiplier, reduced by a
// evidence-dependent share of the trust penalty, and capped at 100.
func CalculateOceano(in OceanoInput) Result {
	officialBoost := 0.0
	if in.IsOfficial {
		officialBoost = 5.0
	}

	lagBoost := in.CoverageLagMinutes / 6.0
	if lagBoost > 20 {
		lagBoost = 20
	}
	if lagBoost < 0 {
		lagBoost = 0
	}

	pdfBoost := 0.0
	if in.HasPDFEvidence {
		pdfBoost = 4.0
	}

	evidenceMultiplier := 1.0 + in.EvidenceScore/5.0

	trustPenaltyShare := 0.6
	if in.EvidenceScore >= 3 {
		trustPenaltyShare = 0.25
	}

	raw := (oceanoBaseWeight + officialBoost + lagBoost + pdfBoost) * evidenceMultiplier
	raw -= in.TrustPenalty * trustPenaltyShare

	final := math.Min(raw, oceanoCap)

	var reasons []string
	if in.EvidenceScore > 3 {
		reasons = append(reasons, ReasonOceanoEvidenceStrong)
	}
	if lagBoost > 0 {
		reasons = append(reasons, ReasonOceanoCoverageLag)
	}
	if in.HasPDFEvidence {
		reasons = append(reasons, ReasonOceanoEvidencePDF)
	}
	if in.TrustPenalty > 0 {
		reasons = append(reasons, ReasonOceanoTrustPenaltyReduced)
	}
	if in.IsOfficial {
		reasons = append(reasons, ReasonOceanoOfficialSource)
	}

	return Result{Score: round2(final), Reasons: reasons}
}
