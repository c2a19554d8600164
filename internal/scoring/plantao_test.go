package scoring

import "testing"

func TestCalculatePlantao_IncludesExpectedReasons(t *testing.T) {
	result := CalculatePlantao(PlantaoInput{
		Tier:         1,
		VelocityDocs: 8,
		SourceCount:  4,
		AgeHours:     5.0 / 60,
		ImpactSignal: 4,
		TrustPenalty: 1,
	})
	if result.Score <= 0 {
		t.Fatalf("expected positive score, got %f", result.Score)
	}
	assertContains(t, result.Reasons, ReasonPlantaoTierWeight)
	assertContains(t, result.Reasons, ReasonPlantaoVelocitySpike)
	assertContains(t, result.Reasons, ReasonPlantaoDiversity)
	assertContains(t, result.Reasons, ReasonPlantaoImpactHeuristic)
	assertContains(t, result.Reasons, ReasonPlantaoTrustPenalty)
}

func TestCalculatePlantao_DecaysWithAge(t *testing.T) {
	fresh := CalculatePlantao(PlantaoInput{Tier: 2, VelocityDocs: 1, SourceCount: 1, AgeHours: 0})
	old := CalculatePlantao(PlantaoInput{Tier: 2, VelocityDocs: 1, SourceCount: 1, AgeHours: 6})
	if old.Score >= fresh.Score {
		t.Fatalf("expected older event to score lower: fresh=%f old=%f", fresh.Score, old.Score)
	}
	assertContains(t, old.Reasons, ReasonPlantaoDecay)
}

func TestCalculatePlantao_TrustPenaltyClampedAtTwenty(t *testing.T) {
	result := CalculatePlantao(PlantaoInput{Tier: 3, VelocityDocs: 0, SourceCount: 1, AgeHours: 0, TrustPenalty: 1000})
	unclamped := CalculatePlantao(PlantaoInput{Tier: 3, VelocityDocs: 0, SourceCount: 1, AgeHours: 0, TrustPenalty: 20})
	if result.Score != unclamped.Score {
		t.Fatalf("expected trust penalty to clamp at 20: got %f vs %f", result.Score, unclamped.Score)
	}
}

func TestCalculateOceano_RewardsLagAndPDF(t *testing.T) {
	low := CalculateOceano(OceanoInput{EvidenceScore: 1, IsOfficial: false, CoverageLagMinutes: 0, HasPDFEvidence: false, TrustPenalty: 2})
	high := CalculateOceano(OceanoInput{EvidenceScore: 4, IsOfficial: true, CoverageLagMinutes: 120, HasPDFEvidence: true, TrustPenalty: 2})

	if high.Score <= low.Score {
		t.Fatalf("expected higher score for official+lag+pdf+evidence: low=%f high=%f", low.Score, high.Score)
	}
	assertContains(t, high.Reasons, ReasonOceanoCoverageLag)
	assertContains(t, high.Reasons, ReasonOceanoEvidencePDF)
	assertContains(t, high.Reasons, ReasonOceanoOfficialSource)
}

func TestCalculateOceano_CapsAtOneHundred(t *testing.T) {
	result := CalculateOceano(OceanoInput{EvidenceScore: 1000, IsOfficial: true, CoverageLagMinutes: 10000, HasPDFEvidence: true})
	if result.Score != oceanoCap {
		t.Fatalf("expected score capped at %f, got %f", oceanoCap, result.Score)
	}
}

func TestCalculateOceano_LagBoostCapsAtTwenty(t *testing.T) {
	moderate := CalculateOceano(OceanoInput{EvidenceScore: 0, CoverageLagMinutes: 120})
	extreme := CalculateOceano(OceanoInput{EvidenceScore: 0, CoverageLagMinutes: 100000})
	if moderate.Score != extreme.Score {
		t.Fatalf("expected lag boost to cap at 20 (lag/6), moderate=%f extreme=%f", moderate.Score, extreme.Score)
	}
}

func TestDeriveFlags_UnverifiedViral(t *testing.T) {
	flags := DeriveFlags(51, 3)
	assertContainsFlag(t, flags, FlagUnverifiedViral)

	flags = DeriveFlags(51, 2)
	if len(flags) != 0 {
		t.Fatalf("expected no flags when diversity<3, got %v", flags)
	}
}

func TestProposeState_Quarantine(t *testing.T) {
	if got := ProposeState(10, 2, "HYDRATING"); got != ProposeQuarantine {
		t.Fatalf("expected quarantine, got %s", got)
	}
}

func TestProposeState_Hot(t *testing.T) {
	if got := ProposeState(75, 1, "HYDRATING"); got != ProposeHot {
		t.Fatalf("expected hot, got %s", got)
	}
}

func TestProposeState_HydratingWhileNew(t *testing.T) {
	if got := ProposeState(40, 1, "NEW"); got != ProposeHydrating {
		t.Fatalf("expected hydrating, got %s", got)
	}
}

func TestProposeState_NoneWhenStable(t *testing.T) {
	if got := ProposeState(40, 1, "TRACKING"); got != ProposeNone {
		t.Fatalf("expected no proposal, got %s", got)
	}
}

func assertContains(t *testing.T, reasons []string, want string) {
	t.Helper()
	for _, r := range reasons {
		if r == want {
			return
		}
	}
	t.Fatalf("expected reason %q in %v", want, reasons)
}

func assertContainsFlag(t *testing.T, flags []Flag, want Flag) {
	t.Helper()
	for _, f := range flags {
		if f == want {
			return
		}
	}
	t.Fatalf("expected flag %q in %v", want, flags)
}
