package strategy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor implements the PDF pipeline of spec.md §4.4. A page with at
// least one multi-fragment row goes through the row/position-aware pass,
// which serializes rows as `[TABLE] a | b | c [/TABLE]`; every other page
// goes through the library's plain-text extraction. No OCR library is wired
// into this deployment (no tesseract/gosseract-style dependency exists among
// the pack's example repos), so when no page yields text Extract returns
// strategy.ErrOCRUnavailable rather than attempting image-based recognition.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// ErrOCRUnavailable mirrors infrastructure/errors.CodeOCRUnavailable: the
// text and tabular passes both found nothing extractable.
var ErrOCRUnavailable = fmt.Errorf("pdf has no extractable text layer and OCR is not configured")

func (p *PDFExtractor) Extract(body []byte, pageURL string) ([]Item, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("pdf parse: %w", err)
	}

	fonts := make(map[string]pdf.Font)
	var out strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		if rows, rerr := page.GetTextByRow(); rerr == nil && hasTabularRows(rows) {
			out.WriteString(serializeRows(rows))
			out.WriteString("\n")
			continue
		}

		text, terr := page.GetPlainText(fonts)
		if terr != nil {
			continue
		}
		out.WriteString(text)
		out.WriteString("\n")
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return nil, ErrOCRUnavailable
	}

	item := Item{
		URL:  pageURL,
		Text: truncate(text, MaxPDFChars),
	}
	return []Item{item}, nil
}

// hasTabularRows treats a page as tabular when at least one row has more
// than one distinct text fragment, a cheap proxy for multiple columns.
func hasTabularRows(rows pdf.Rows) bool {
	for _, row := range rows {
		if len(row.Content) > 1 {
			return true
		}
	}
	return false
}

func serializeRows(rows pdf.Rows) string {
	var b strings.Builder
	for _, row := range rows {
		if len(row.Content) == 0 {
			continue
		}
		cells := make([]string, 0, len(row.Content))
		for _, cell := range row.Content {
			s := strings.TrimSpace(cell.S)
			if s != "" {
				cells = append(cells, s)
			}
		}
		if len(cells) == 0 {
			continue
		}
		b.WriteString("[TABLE] ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" [/TABLE]\n")
	}
	return b.String()
}
