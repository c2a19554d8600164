package strategy

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// xhrBeginMarker/xhrEndMarker bound the XHR capture blob internal/fetcher's
// HeadlessExecutor appends to a rendered page's body (see
// internal/fetcher/strategy/headless.go's headlessBodyOpen/headlessBodyClose
// constants - the same literal markers, detected here on the consuming end).
const (
	xhrBeginMarker = "<!--NEWSRADAR_XHR_CAPTURE_BEGIN-->"
	xhrEndMarker   = "<!--NEWSRADAR_XHR_CAPTURE_END-->"
)

// boilerplateSelectors strips chrome that is never part of an article's main
// text before density scoring runs.
const boilerplateSelectors = "script, style, nav, header, footer, aside, noscript, form, iframe, svg"

// HTMLExtractor implements the HTML/SPA_HEADLESS strategy of spec.md §4.4:
// goquery-based main-text density scoring (no dedicated readability/
// boilerplate-removal package exists among the pack's dependencies, so the
// density heuristic is built directly on goquery's Find/Each, the same
// jQuery-style traversal the library is meant for) plus metadata pulled from
// <html lang>, og:title, author meta tags, the canonical link, and the
// article:published_time/modified_time meta pair. Falls back to the
// sentinel-delimited XHR capture blob when the rendered page yields no text.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

func (h *HTMLExtractor) Extract(body []byte, pageURL string) ([]Item, error) {
	raw := string(body)
	docHTML, captured, hasCapture := splitXHRCapture(raw)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(docHTML))
	if err != nil {
		return nil, fmt.Errorf("html parse: %w", err)
	}
	doc.Find(boilerplateSelectors).Remove()

	item := Item{URL: pageURL}
	item.Lang, _ = doc.Find("html").Attr("lang")
	item.Title = metaContent(doc, "og:title")
	if item.Title == "" {
		item.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	item.Author = firstNonEmpty(metaContent(doc, "author"), metaContent(doc, "article:author"))
	if href, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		item.CanonicalURL = href
	}
	if raw := metaContent(doc, "article:published_time"); raw != "" {
		if t, ok := parseTimestamp(raw); ok {
			item.PublishedAt = &t
		}
	}
	if raw := metaContent(doc, "article:modified_time"); raw != "" {
		if t, ok := parseTimestamp(raw); ok {
			item.ModifiedAt = &t
		}
	}

	text := mainText(doc)
	if strings.TrimSpace(text) == "" && hasCapture && captured != "" {
		text = captured
	}
	item.Text = truncate(strings.TrimSpace(text), MaxTextChars)

	if item.Text == "" || item.URL == "" {
		return nil, nil
	}
	// Single item per page (spec.md §4.4).
	return []Item{item}, nil
}

// mainText scores candidate containers by text-to-link density, the same
// family of heuristic dedicated boilerplate-removal libraries use, and
// returns the highest-scoring candidate's text (or the whole body's text if
// nothing scores above the noise floor).
func mainText(doc *goquery.Document) string {
	best := ""
	bestScore := -1.0
	doc.Find("article, main, [role='main'], section, div").Each(func(_ int, s *goquery.Selection) {
		txt := strings.TrimSpace(s.Text())
		if len(txt) < 200 {
			return
		}
		linkLen := 0
		s.Find("a").Each(func(_ int, a *goquery.Selection) {
			linkLen += len(strings.TrimSpace(a.Text()))
		})
		density := float64(len(txt)-linkLen) / float64(len(txt)+1)
		score := density * float64(len(txt))
		if score > bestScore {
			bestScore = score
			best = txt
		}
	})
	if best == "" {
		best = strings.TrimSpace(doc.Find("body").Text())
	}
	return collapseWhitespace(best)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func metaContent(doc *goquery.Document, name string) string {
	out := ""
	doc.Find(fmt.Sprintf("meta[property='%s'], meta[name='%s']", name, name)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("content"); ok && v != "" {
			out = v
			return false
		}
		return true
	})
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitXHRCapture(html string) (pre string, captured string, ok bool) {
	bi := strings.Index(html, xhrBeginMarker)
	ei := strings.Index(html, xhrEndMarker)
	if bi == -1 || ei == -1 || ei < bi {
		return html, "", false
	}
	return html[:bi], strings.TrimSpace(html[bi+len(xhrBeginMarker) : ei]), true
}
