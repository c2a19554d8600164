// Package lane infers a document's editorial lane and a source's official/
// media-group classification from host names and keyword heuristics.
// This is a SPEC_FULL.md supplemented feature: spec.md names `lane` as an
// attribute of Document/Event/SourceProfile but leaves its derivation
// unspecified; recovered here from
// original_source/backend/app/core/source_taxonomy.py.
package lane

import (
	"net/url"
	"regexp"
	"strings"
)

// Lane is one of the fixed editorial categories.
type Lane string

const (
	LaneJustica        Lane = "justica"
	LanePolitica        Lane = "politica"
	LaneEconomia        Lane = "economia"
	LaneSeguranca       Lane = "seguranca"
	LaneSaude           Lane = "saude"
	LaneEducacao        Lane = "educacao"
	LaneInternacional   Lane = "internacional"
	LaneMeioAmbiente    Lane = "meio_ambiente"
	LaneDireitosHumanos Lane = "direitos_humanos"
	LaneTecnologia      Lane = "tecnologia"
	LaneInfraestrutura  Lane = "infraestrutura"
	LaneAgronegocio     Lane = "agronegocio"
	LaneEsportes        Lane = "esportes"
	LaneEntretenimento  Lane = "entretenimento"
	LaneCultura         Lane = "cultura"
	LaneOpiniao         Lane = "opiniao"
	LaneHardnews        Lane = "hardnews"
	LaneGeral           Lane = "geral"
)

// laneKeywords maps each lane to the keyword set that identifies it in
// title/snippet text.
var laneKeywords = map[Lane][]string{
	LaneJustica:        {"stf", "stj", "tse", "justica", "tribunal", "mpf", "ministerio publico", "operacao"},
	LanePolitica:       {"politica", "congresso", "senado", "camara", "planalto", "presidente", "eleicao"},
	LaneEconomia:       {"economia", "mercado", "bolsa", "selic", "copom", "inflacao", "fiscal", "orcamento"},
	LaneSeguranca:      {"seguranca", "policia", "crime", "faccao", "prisao", "violencia"},
	LaneSaude:          {"saude", "sus", "hospital", "anvisa", "vacin", "epidemia"},
	LaneEducacao:       {"educacao", "mec", "enem", "fies", "sisu", "universidade", "escola", "professor", "aluno"},
	LaneInternacional:  {"itamaraty", "onu", "mercosul", "internacional", "g20", "g7"},
	LaneMeioAmbiente:   {"meio ambiente", "clima", "amazonia", "desmatamento", "queimada", "ibama", "icmbio", "cop30"},
	LaneDireitosHumanos: {"direitos humanos", "racismo", "violencia policial", "feminicidio", "indigena", "quilombola"},
	LaneTecnologia:     {"tecnologia", "ia", "inteligencia artificial", "chip", "software"},
	LaneInfraestrutura: {"rodovia", "ferrovia", "porto", "aeroporto", "saneamento", "obras", "mobilidade urbana", "energia"},
	LaneAgronegocio:    {"agronegocio", "agro", "safra", "conab", "soja", "milho", "pecuaria", "carne"},
	LaneEsportes:       {"futebol", "campeonato", "rodada", "gol", "time", "partida", "olimpiada", "olimpíada", "copa"},
	LaneEntretenimento: {"bbb", "reality", "famoso", "celebridade", "novela", "streaming", "serie", "série", "show"},
	LaneCultura:        {"cultura", "filme", "teatro", "musica", "literatura"},
	LaneOpiniao:        {"opiniao", "editorial", "coluna", "artigo"},
}

// lanePriority breaks keyword-hit ties in favor of the editorially heavier
// lane, mirroring the original's priority_order table.
var lanePriority = map[Lane]int{
	LaneJustica:       4,
	LanePolitica:      3,
	LaneEconomia:      3,
	LaneSeguranca:     3,
	LaneSaude:         2,
	LaneEducacao:      2,
	LaneInternacional: 2,
	LaneMeioAmbiente:  2,
}

var knownLanes = func() map[Lane]bool {
	m := map[Lane]bool{LaneHardnews: true}
	for l := range laneKeywords {
		m[l] = true
	}
	return m
}()

var spaceRun = regexp.MustCompile(`\s+`)

// nonWordRun splits text into words so keywords match only at a word start.
var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func normalizeText(s string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(strings.ToLower(s)), " ")
}

// InferenceInput carries everything known about a document when inferring
// its editorial lane.
type InferenceInput struct {
	ExplicitLane string
	Editoria     string
	Topic        string
	Title        string
	Snippet      string
	SourceScope  string
}

// InferEditorialLane assigns a lane: an explicit/already-known lane wins
// outright; otherwise keyword hits against title+snippet are scored and
// the highest-priority lane with the most hits wins; falling back to
// topic, editoria, source scope, and finally LaneGeral.
func InferEditorialLane(in InferenceInput) Lane {
	if explicit := Lane(normalizeText(in.ExplicitLane)); knownLanes[explicit] {
		return explicit
	}

	text := " " + nonWordRun.ReplaceAllString(normalizeText(in.Title+" "+in.Snippet), " ")
	hits := make(map[Lane]int)
	for l, keywords := range laneKeywords {
		count := 0
		for _, kw := range keywords {
			if strings.Contains(text, " "+kw) {
				count++
			}
		}
		if count > 0 {
			hits[l] = count
		}
	}
	if len(hits) > 0 {
		var best Lane
		bestHits, bestPriority := -1, -1
		for l, count := range hits {
			p := lanePriority[l]
			if count > bestHits || (count == bestHits && p > bestPriority) {
				best, bestHits, bestPriority = l, count, p
			}
		}
		return best
	}

	if topic := Lane(strings.ReplaceAll(normalizeText(in.Topic), " ", "_")); knownLanes[topic] && topic != LaneGeral {
		return topic
	}
	if editoria := Lane(strings.ReplaceAll(normalizeText(in.Editoria), " ", "_")); knownLanes[editoria] && editoria != LaneGeral {
		return editoria
	}

	switch normalizeText(in.SourceScope) {
	case "federal", "estadual", "municipal":
		return LanePolitica
	case "internacional":
		return LaneInternacional
	}
	return LaneGeral
}

// SourceClass is the editorial trust tier a source is bucketed into.
type SourceClass string

const (
	ClassPrimary     SourceClass = "primary"
	ClassCompetitor  SourceClass = "competitor"
	ClassIndependent SourceClass = "independent"
	ClassSpecialized SourceClass = "specialized"
	ClassOther       SourceClass = "other"
)

var officialHostSuffixes = []string{
	"gov.br", "senado.leg.br", "camara.leg.br", "stf.jus.br", "stj.jus.br",
	"tse.jus.br", "mpf.mp.br", "agenciabrasil.ebc.com.br", "ibge.gov.br", "fiocruz.br",
}

var competitorHostSuffixes = []string{
	"news.google.com", "g1.globo.com", "globo.com", "uol.com.br", "folha.uol.com.br",
	"redir.folha.com.br", "estadao.com.br", "cnnbrasil.com.br", "metropoles.com",
	"infomoney.com.br", "exame.com", "terra.com.br", "r7.com", "operamundi.uol.com.br",
}

var independentHostSuffixes = []string{
	"revistaforum.com.br", "brasildefato.com.br", "tvtnews.com.br",
	"diariodocentrodomundo.com.br", "cartacapital.com.br", "apublica.org",
	"intercept.com.br", "nexojornal.com.br", "poder360.com.br", "nodal.am",
}

var specializedHostSuffixes = []string{"jota.info", "conjur.com.br"}

func hostMatchesAny(host string, suffixes []string) bool {
	host = normalizeText(host)
	if host == "" {
		return false
	}
	for _, suffix := range suffixes {
		suffix = normalizeText(suffix)
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// InferSourceClass classifies a source by its URL's host, falling back to
// name/URL keyword heuristics (spec.md §3's `official` + SPEC_FULL.md's
// media_group supplement).
func InferSourceClass(sourceName, sourceURL string, currentClass string) SourceClass {
	if c := SourceClass(normalizeText(currentClass)); c == ClassPrimary || c == ClassCompetitor || c == ClassIndependent || c == ClassSpecialized {
		return c
	}

	host := ""
	if u, err := url.Parse(sourceURL); err == nil {
		host = normalizeText(u.Hostname())
	}
	switch {
	case hostMatchesAny(host, officialHostSuffixes):
		return ClassPrimary
	case hostMatchesAny(host, specializedHostSuffixes):
		return ClassSpecialized
	case hostMatchesAny(host, competitorHostSuffixes):
		return ClassCompetitor
	case hostMatchesAny(host, independentHostSuffixes):
		return ClassIndependent
	}

	text := normalizeText(sourceName + " " + sourceURL)
	switch {
	case containsAny(text, "poder360", "jota", "conjur"):
		return ClassSpecialized
	case containsAny(text, "uol", "folha", "globo", "g1", "estadao", "cnn brasil", "metropoles", "opera mundi", "r7", "terra"):
		return ClassCompetitor
	case containsAny(text, "revista forum", "brasil de fato", "intercept", "apublica", "nexo", "nodal"):
		return ClassIndependent
	case containsAny(text, "tribunal", "ministerio", "camara", "senado", "prefeitura", "governo"):
		return ClassPrimary
	}
	return ClassOther
}

func containsAny(text string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// IsOfficial is the thin boolean SourceProfile.official derives from
// InferSourceClass, for spec.md §3's `official` attribute.
func IsOfficial(sourceName, sourceURL string) bool {
	return InferSourceClass(sourceName, sourceURL, "") == ClassPrimary
}
