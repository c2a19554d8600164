package lane

import "testing"

func TestInferEditorialLane_ExplicitLaneWins(t *testing.T) {
	got := InferEditorialLane(InferenceInput{ExplicitLane: "esportes", Title: "STF julga operação da polícia federal"})
	if got != LaneEsportes {
		t.Fatalf("expected explicit lane to win, got %s", got)
	}
}

func TestInferEditorialLane_KeywordHitsPickHighestPriorityLane(t *testing.T) {
	got := InferEditorialLane(InferenceInput{
		Title: "STF e Congresso discutem nova política fiscal",
	})
	if got != LaneJustica {
		t.Fatalf("expected justica (priority 4) to win over politica, got %s", got)
	}
}

func TestInferEditorialLane_MoreHitsBeatsHigherPriority(t *testing.T) {
	got := InferEditorialLane(InferenceInput{
		Title:   "Mercado, bolsa e inflação pressionam Copom e orçamento fiscal",
		Snippet: "",
	})
	if got != LaneEconomia {
		t.Fatalf("expected economia (more hits) to win, got %s", got)
	}
}

func TestInferEditorialLane_FallsBackToTopic(t *testing.T) {
	got := InferEditorialLane(InferenceInput{Topic: "saude"})
	if got != LaneSaude {
		t.Fatalf("expected fallback to topic, got %s", got)
	}
}

func TestInferEditorialLane_FallsBackToSourceScope(t *testing.T) {
	got := InferEditorialLane(InferenceInput{SourceScope: "federal"})
	if got != LanePolitica {
		t.Fatalf("expected federal scope to fall back to politica, got %s", got)
	}
	got = InferEditorialLane(InferenceInput{SourceScope: "internacional"})
	if got != LaneInternacional {
		t.Fatalf("expected internacional scope fallback, got %s", got)
	}
}

func TestInferEditorialLane_DefaultsToGeral(t *testing.T) {
	got := InferEditorialLane(InferenceInput{Title: "um dia qualquer sem palavras-chave relevantes"})
	if got != LaneGeral {
		t.Fatalf("expected geral default, got %s", got)
	}
}

func TestInferSourceClass_OfficialHostSuffix(t *testing.T) {
	got := InferSourceClass("Ministério da Saúde", "https://www.gov.br/saude/pt-br", "")
	if got != ClassPrimary {
		t.Fatalf("expected primary for .gov.br host, got %s", got)
	}
}

func TestInferSourceClass_CompetitorHostSuffix(t *testing.T) {
	got := InferSourceClass("G1", "https://g1.globo.com/politica", "")
	if got != ClassCompetitor {
		t.Fatalf("expected competitor for globo.com host, got %s", got)
	}
}

func TestInferSourceClass_RespectsExplicitCurrentClass(t *testing.T) {
	got := InferSourceClass("Anything", "https://example.com", "independent")
	if got != ClassIndependent {
		t.Fatalf("expected explicit current class to win, got %s", got)
	}
}

func TestInferSourceClass_KeywordFallbackForUnknownHost(t *testing.T) {
	got := InferSourceClass("Tribunal Regional Eleitoral", "https://example-tre.org", "")
	if got != ClassPrimary {
		t.Fatalf("expected keyword fallback to primary, got %s", got)
	}
}

func TestIsOfficial(t *testing.T) {
	if !IsOfficial("Receita Federal", "https://www.gov.br/receitafederal") {
		t.Fatal("expected gov.br source to be official")
	}
	if IsOfficial("G1", "https://g1.globo.com") {
		t.Fatal("expected competitor source to not be official")
	}
}
