package extractor

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/internal/fetcher"
	"github.com/pautaradar/newsradar/internal/source"
)

type fakeOrganize struct {
	tasks []OrganizeTask
}

func (f *fakeOrganize) EnqueueOrganize(ctx context.Context, task OrganizeTask) error {
	f.tasks = append(f.tasks, task)
	return nil
}

func baseTask(strategyName source.Strategy) fetcher.ExtractTask {
	return fetcher.ExtractTask{
		SourceID: "src1",
		Tier:     1,
		Pool:     "extract_fast",
		Profile: source.Profile{
			Strategy:  strategyName,
			Pool:      source.PoolFast,
			Endpoints: map[string]string{"latest": "https://orgao.gov.br/pagina"},
		},
	}
}

func TestExtract_FeedProducesOneItemPerEntryWithContentHash(t *testing.T) {
	const rss = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item>
  <title>CGU abre investigacao</title>
  <link>https://orgao.gov.br/noticia/1</link>
  <description>Texto do resumo da noticia</description>
</item>
</channel></rss>`

	org := &fakeOrganize{}
	e := New(org, nil, nil)
	task := baseTask(source.StrategyFeed)
	task.Body = []byte(rss)

	result, err := e.Extract(context.Background(), task, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemCount != 1 {
		t.Fatalf("expected 1 item, got %d", result.ItemCount)
	}
	if len(org.tasks) != 1 {
		t.Fatalf("expected 1 organize task enqueued, got %d", len(org.tasks))
	}
	item := org.tasks[0].Item
	if item.Title != "CGU abre investigacao" || item.URL != "https://orgao.gov.br/noticia/1" {
		t.Fatalf("unexpected item: %+v", item)
	}
	want := contentHash(item.Title, item.URL, item.Text)
	if item.ContentHash != want {
		t.Fatalf("content_hash mismatch: got %s want %s", item.ContentHash, want)
	}
	if item.SourceID != "src1" || item.Tier != 1 {
		t.Fatalf("expected task metadata propagated, got %+v", item)
	}
}

func TestExtract_APIResolvesItemsPathAndConcatenatesTextFields(t *testing.T) {
	const body = `{"data":{"rows":[{"headline":"Ato normativo publicado","summary":"Resumo","body":"Corpo do ato","url":"https://orgao.gov.br/atos/1","author":"Assessoria"}]}}`

	org := &fakeOrganize{}
	e := New(org, nil, nil)
	task := baseTask(source.StrategyAPI)
	task.Body = []byte(body)
	task.Profile.Metadata.APIContract = &source.APIContract{
		ItemsPath:    "data.rows",
		TextFields:   []string{"summary", "body"},
		URLFields:    []string{"url"},
		AuthorFields: []string{"author"},
	}

	result, err := e.Extract(context.Background(), task, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemCount != 1 {
		t.Fatalf("expected 1 item, got %d", result.ItemCount)
	}
	item := org.tasks[0].Item
	if !strings.Contains(item.Text, "Resumo") || !strings.Contains(item.Text, "Corpo do ato") {
		t.Fatalf("expected concatenated text fields, got %q", item.Text)
	}
	if item.URL != "https://orgao.gov.br/atos/1" || item.Author != "Assessoria" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestExtract_APIFallsBackToRowsKeyWithoutItemsPath(t *testing.T) {
	const body = `{"rows":[{"title":"T1","text":"some text","url":"https://orgao.gov.br/1"}]}`

	org := &fakeOrganize{}
	e := New(org, nil, nil)
	task := baseTask(source.StrategySPAAPI)
	task.Body = []byte(body)

	result, err := e.Extract(context.Background(), task, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemCount != 1 {
		t.Fatalf("expected 1 item via rows fallback, got %d", result.ItemCount)
	}
}

func TestExtract_HTMLMainTextAndMetadata(t *testing.T) {
	html := `<html lang="pt-BR"><head>
<meta property="og:title" content="Edital publicado"/>
<link rel="canonical" href="https://orgao.gov.br/canonical/1"/>
</head><body>
<nav>menu menu menu</nav>
<article><p>` + strings.Repeat("Texto relevante do edital publicado pelo orgao competente. ", 10) + `</p></article>
</body></html>`

	org := &fakeOrganize{}
	e := New(org, nil, nil)
	task := baseTask(source.StrategyHTML)
	task.Body = []byte(html)

	result, err := e.Extract(context.Background(), task, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemCount != 1 {
		t.Fatalf("expected single item per page, got %d", result.ItemCount)
	}
	item := org.tasks[0].Item
	if item.Title != "Edital publicado" {
		t.Fatalf("expected og:title metadata, got %q", item.Title)
	}
	if item.CanonicalURL != "https://orgao.gov.br/canonical/1" {
		t.Fatalf("expected canonical link metadata, got %q", item.CanonicalURL)
	}
	if item.Lang != "pt-BR" {
		t.Fatalf("expected html lang metadata, got %q", item.Lang)
	}
	if strings.Contains(item.Text, "menu menu menu") {
		t.Fatalf("expected nav boilerplate stripped, got %q", item.Text)
	}
	if !strings.Contains(item.Text, "Texto relevante") {
		t.Fatalf("expected article text extracted, got %q", item.Text)
	}
}

func TestExtract_HTMLFallsBackToXHRCaptureWhenMainTextEmpty(t *testing.T) {
	html := `<html><body></body></html>` +
		"\n<!--NEWSRADAR_XHR_CAPTURE_BEGIN-->\n" +
		`{"title":"Conteudo via API"}` +
		"\n<!--NEWSRADAR_XHR_CAPTURE_END-->\n"

	org := &fakeOrganize{}
	e := New(org, nil, nil)
	task := baseTask(source.StrategySPAHeadless)
	task.Body = []byte(html)

	result, err := e.Extract(context.Background(), task, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemCount != 1 {
		t.Fatalf("expected the captured XHR blob to become the item text, got %d items", result.ItemCount)
	}
	if !strings.Contains(org.tasks[0].Item.Text, "Conteudo via API") {
		t.Fatalf("expected captured blob as text, got %q", org.tasks[0].Item.Text)
	}
}

func TestExtract_PDFInvalidBodyIsAParseError(t *testing.T) {
	org := &fakeOrganize{}
	e := New(org, nil, nil)
	task := baseTask(source.StrategyPDF)
	task.Body = []byte(base64.StdEncoding.EncodeToString([]byte("not a real pdf")))

	_, err := e.Extract(context.Background(), task, time.Now())
	if err == nil {
		t.Fatalf("expected an error for a non-PDF payload")
	}
	if len(org.tasks) != 0 {
		t.Fatalf("expected no organize task enqueued on extraction failure")
	}
}

func TestExtract_UnknownStrategyIsRejected(t *testing.T) {
	org := &fakeOrganize{}
	e := New(org, nil, nil)
	task := baseTask(source.Strategy("BOGUS"))
	task.Body = []byte("x")

	_, err := e.Extract(context.Background(), task, time.Now())
	if err == nil {
		t.Fatalf("expected an error for an unknown strategy")
	}
}
