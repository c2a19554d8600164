// Package anchor implements the fixed regex/evidence pack of spec.md §4.5:
// a set of Brazilian-public-administration identifier patterns plus a URL
// scanner, each match normalized and weighted into a per-document evidence
// score. Grounded on the original implementation's regex_pack.py, extended
// with the DATA/HORA patterns and weight table spec.md adds on top of it.
package anchor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies an anchor or evidence-feature type (spec.md §4.5).
type Kind string

const (
	KindCNPJ    Kind = "CNPJ"
	KindCPF     Kind = "CPF"
	KindCNJ     Kind = "CNJ"
	KindSEI     Kind = "SEI"
	KindTCU     Kind = "TCU"
	KindPL      Kind = "PL"
	KindATO     Kind = "ATO"
	KindVALOR   Kind = "VALOR"
	KindDATA    Kind = "DATA"
	KindHORA    Kind = "HORA"
	KindLinkGov Kind = "LINK_GOV"
	KindPDF     Kind = "PDF"
)

// Weight is the per-kind contribution to a document's evidence score
// (spec.md §4.5), counted once per unique (kind, normalized) pair.
var Weight = map[Kind]float64{
	KindCNJ:     2.0,
	KindTCU:     2.0,
	KindPL:      1.5,
	KindCNPJ:    1.5,
	KindCPF:     1.2,
	KindPDF:     1.2,
	KindSEI:     1.2,
	KindLinkGov: 0.8,
	KindVALOR:   0.5,
	KindDATA:    0.2,
	KindHORA:    0.2,
}

// EvidenceCap is the maximum possible evidence score for one document.
const EvidenceCap = 15.0

var patterns = map[Kind]*regexp.Regexp{
	KindCNPJ: regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b`),
	KindCPF:  regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`),
	KindCNJ:  regexp.MustCompile(`\b\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}\b`),
	KindSEI:  regexp.MustCompile(`\b\d{5}\.\d{6}/\d{4}-\d{2}\b`),
	KindTCU:  regexp.MustCompile(`(?i)Ac[oó]rd[aã]o\s+(\d+/\d+)`),
	KindPL:   regexp.MustCompile(`(?i)\b(?:PL|PEC|PLP)\s+\d+(?:/\d+)?`),
	KindATO:  regexp.MustCompile(`(?i)(?:Portaria|Decreto|Resolu[cç][aã]o)\s+(?:n[ºo]\s*)?\d+/\d+`),
	KindVALOR: regexp.MustCompile(`R\$\s*[\d.]+(?:,\d{2})?`),
	KindDATA:  regexp.MustCompile(`\b([0-3]?\d)/([01]?\d)/(\d{4})\b`),
	KindHORA:  regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`),
}

// orderedKinds fixes iteration order so overlapping-pattern extraction is
// deterministic regardless of map ordering.
var orderedKinds = []Kind{
	KindCNPJ, KindCPF, KindCNJ, KindSEI, KindTCU, KindPL, KindATO, KindVALOR, KindDATA, KindHORA,
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>)]+`)

// Match is a single regex/URL anchor found in a document's text, with its
// ±30-character context window (spec.md §4.5).
type Match struct {
	Kind       Kind
	Value      string
	Normalized string
	Start      int
	Context    string
}

// Extract applies the fixed regex pack and URL scanner to text, and dedupes
// by (kind, value, match_start) per spec.md §4.5.
func Extract(text string) []Match {
	seen := make(map[string]bool)
	var out []Match

	for _, kind := range orderedKinds {
		re := patterns[kind]
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			value := text[start:end]
			key := fmt.Sprintf("%s|%s|%d", kind, value, start)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Match{
				Kind:       kind,
				Value:      value,
				Normalized: normalize(kind, value, loc, text),
				Start:      start,
				Context:    contextWindow(text, start, end),
			})
		}
	}

	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		raw := text[start:end]
		for _, kind := range classifyURL(raw) {
			key := fmt.Sprintf("%s|%s|%d", kind, raw, start)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Match{
				Kind:       kind,
				Value:      raw,
				Normalized: raw,
				Start:      start,
				Context:    contextWindow(text, start, end),
			})
		}
	}

	return out
}

func contextWindow(text string, start, end int) string {
	lo := start - 30
	if lo < 0 {
		lo = 0
	}
	hi := end + 30
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

var govHostSuffixes = []string{".gov.br", ".leg.br", ".jus.br"}

// classifyURL returns the set of kinds a URL scanner match belongs to
// (spec.md §4.5: may be both LINK_GOV and PDF).
func classifyURL(raw string) []Kind {
	var kinds []Kind
	lower := strings.ToLower(raw)
	for _, suffix := range govHostSuffixes {
		if strings.Contains(lower, suffix) {
			kinds = append(kinds, KindLinkGov)
			break
		}
	}
	if len(kinds) == 0 && strings.Contains(lower, ".gov.") {
		kinds = append(kinds, KindLinkGov)
	}
	if strings.Contains(lower, ".pdf") {
		kinds = append(kinds, KindPDF)
	}
	return kinds
}

func normalize(kind Kind, value string, loc []int, text string) string {
	switch kind {
	case KindCNPJ, KindCPF, KindSEI:
		return digitsOnly(value)
	case KindCNJ:
		return digitsOnly(value)
	case KindTCU:
		if len(loc) >= 4 && loc[2] >= 0 {
			return text[loc[2]:loc[3]]
		}
		return strings.TrimSpace(value)
	case KindPL:
		return strings.ToUpper(collapseSpaces(value))
	case KindATO:
		return collapseSpaces(value)
	case KindVALOR:
		return normalizeValor(value)
	case KindDATA:
		return normalizeData(value)
	case KindHORA:
		return normalizeHora(value)
	default:
		return value
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeValor converts "R$ 1.234,56" to "BRL:1234.56" (spec.md §4.5).
// An already-normalized "BRL:" value is returned unchanged.
func normalizeValor(s string) string {
	if strings.HasPrefix(s, "BRL:") {
		return s
	}
	digits := strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	digits = strings.TrimSpace(digits)
	digits = strings.ReplaceAll(digits, ".", "")
	digits = strings.ReplaceAll(digits, ",", ".")
	return "BRL:" + digits
}

// normalizeData converts "DD/MM/YYYY" to "YYYY-MM-DD".
func normalizeData(s string) string {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return s
	}
	day, month, year := parts[0], parts[1], parts[2]
	if len(day) == 1 {
		day = "0" + day
	}
	if len(month) == 1 {
		month = "0" + month
	}
	return fmt.Sprintf("%s-%s-%s", year, month, day)
}

// normalizeHora zero-pads "H:MM" to "HH:MM".
func normalizeHora(s string) string {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return s
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return s
	}
	return fmt.Sprintf("%02d:%s", hour, parts[1])
}
