package simhash

import "testing"

func TestCompute_SimilarTextsAreNearDuplicates(t *testing.T) {
	a, ok := Compute("O Ministério da Saúde anunciou hoje um novo programa de vacinação em todo o país.")
	if !ok {
		t.Fatal("expected a fingerprint for non-empty text")
	}
	b, ok := Compute("O Ministério da Saúde anunciou hoje um novo programa de vacinação em todo país.")
	if !ok {
		t.Fatal("expected a fingerprint for non-empty text")
	}
	if !IsNearDuplicate(a, b, 12) {
		t.Fatalf("expected near-duplicate texts within threshold, distance=%d", HammingDistance64(a, b))
	}
}

func TestCompute_DissimilarTextsAreFar(t *testing.T) {
	a, _ := Compute("O tribunal de contas da união publicou o acórdão sobre o processo licitatório da prefeitura.")
	b, _ := Compute("A seleção brasileira de futebol venceu a partida amistosa contra a argentina ontem à noite.")
	if IsNearDuplicate(a, b, 12) {
		t.Fatalf("expected dissimilar texts to exceed threshold, distance=%d", HammingDistance64(a, b))
	}
}

func TestCompute_EmptyOrStopwordOnlyTextYieldsNoFingerprint(t *testing.T) {
	if _, ok := Compute(""); ok {
		t.Fatal("expected no fingerprint for empty text")
	}
	if _, ok := Compute("e o a de do da"); ok {
		t.Fatal("expected no fingerprint for stop-word-only text")
	}
}

func TestCompute_IsDeterministic(t *testing.T) {
	text := "Decreto 123/2024 autoriza novo programa de transferência de renda."
	a, _ := Compute(text)
	b, _ := Compute(text)
	if a != b {
		t.Fatalf("expected deterministic fingerprint, got %d != %d", a, b)
	}
}

func TestNormalizeText_FoldsAccentsAndCase(t *testing.T) {
	got := NormalizeText("AÇÃO Prefeitura-Municipal!!")
	want := "acao prefeitura municipal"
	if got != want {
		t.Fatalf("NormalizeText(...) = %q, want %q", got, want)
	}
}

func TestHammingDistance64_ZeroForIdenticalHash(t *testing.T) {
	if d := HammingDistance64(0xABCDEF, 0xABCDEF); d != 0 {
		t.Fatalf("expected 0 distance for identical hashes, got %d", d)
	}
}

func TestNearestWithinThreshold_TiesBrokenBySmallestDocID(t *testing.T) {
	target := uint64(0)
	candidates := []Candidate{
		{DocumentID: 5, SimHash: 0b1111}, // distance 4
		{DocumentID: 2, SimHash: 0b1111}, // distance 4, smaller id
		{DocumentID: 9, SimHash: 0b1},    // distance 1, closest
	}
	best, ok := NearestWithinThreshold(target, candidates, 12)
	if !ok {
		t.Fatal("expected a match within threshold")
	}
	if best.DocumentID != 9 {
		t.Fatalf("expected closest match (doc 9), got doc %d", best.DocumentID)
	}

	tied := []Candidate{
		{DocumentID: 5, SimHash: 0b1111},
		{DocumentID: 2, SimHash: 0b1111},
	}
	best, ok = NearestWithinThreshold(target, tied, 12)
	if !ok || best.DocumentID != 2 {
		t.Fatalf("expected tie broken by smallest doc id (2), got %+v ok=%v", best, ok)
	}
}

func TestNearestWithinThreshold_NoneWithinThreshold(t *testing.T) {
	_, ok := NearestWithinThreshold(0, []Candidate{{DocumentID: 1, SimHash: ^uint64(0)}}, 12)
	if ok {
		t.Fatal("expected no match when all candidates exceed threshold")
	}
}
