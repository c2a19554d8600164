// Package strategy implements the four per-strategy extraction pipelines of
// spec.md §4.4: FEED, API/SPA_API, HTML/SPA_HEADLESS, and PDF. Each Extractor
// takes the raw fetched payload and the source's Metadata contract and
// returns zero or more Items, mirroring internal/fetcher/strategy's
// Executor/Request/Response shape for the symmetric half of the pipeline.
package strategy

import "time"

// Item is one extracted unit, handed up to internal/extractor for
// content-hash finalization and conversion into an organizer.Item.
type Item struct {
	Title        string
	URL          string
	CanonicalURL string
	Text         string
	Author       string
	Lang         string
	PublishedAt  *time.Time
	ModifiedAt   *time.Time
}

// MaxTextChars is the per-item cap of spec.md §4.4 ("text ≤ 50,000 chars").
const MaxTextChars = 50_000

// MaxPDFChars is the PDF pipeline's output cap ("truncated to ≤200,000
// characters").
const MaxPDFChars = 200_000

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
