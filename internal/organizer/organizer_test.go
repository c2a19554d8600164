package organizer

import (
	"context"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/simhash"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

type fakeDocs struct {
	byURL        map[string]postgres.Document
	saved        []postgres.DocumentBundle
	nextID       int64
	anchorRows   map[string][]postgres.DocAnchor
	simCandidates []postgres.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{byURL: map[string]postgres.Document{}, anchorRows: map[string][]postgres.DocAnchor{}, nextID: 100}
}

func (f *fakeDocs) FindByURL(ctx context.Context, sourceID, url string) (postgres.Document, error) {
	if d, ok := f.byURL[sourceID+"|"+url]; ok {
		return d, nil
	}
	return postgres.Document{}, postgres.ErrNotFound
}

func (f *fakeDocs) SaveDocument(ctx context.Context, b postgres.DocumentBundle) (int64, error) {
	f.nextID++
	f.saved = append(f.saved, b)
	return f.nextID, nil
}

func (f *fakeDocs) AnchorsByNormalized(ctx context.Context, kind, normalized string, since time.Time, excludeDocumentID int64) ([]postgres.DocAnchor, error) {
	return f.anchorRows[kind+"|"+normalized], nil
}

func (f *fakeDocs) SimHashCandidates(ctx context.Context, since time.Time, excludeDocumentID int64) ([]postgres.Document, error) {
	return f.simCandidates, nil
}

type fakeEvents struct {
	linkedDocEvents map[int64]int64
	created         []postgres.Event
	linked          []struct {
		eventID, docID int64
		reason         string
	}
	touched  map[int64]time.Time
	nextID   int64
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{linkedDocEvents: map[int64]int64{}, touched: map[int64]time.Time{}, nextID: 1}
}

func (f *fakeEvents) EventIDForDocument(ctx context.Context, documentID int64) (int64, bool, error) {
	id, ok := f.linkedDocEvents[documentID]
	return id, ok, nil
}

func (f *fakeEvents) CreateEvent(ctx context.Context, ev postgres.Event, primaryDocID int64, linkReason string, initialState string) (int64, error) {
	f.nextID++
	f.created = append(f.created, ev)
	f.linkedDocEvents[primaryDocID] = f.nextID
	return f.nextID, nil
}

func (f *fakeEvents) LinkDocument(ctx context.Context, eventID, documentID int64, reason string) error {
	f.linked = append(f.linked, struct {
		eventID, docID int64
		reason         string
	}{eventID, documentID, reason})
	f.linkedDocEvents[documentID] = eventID
	return nil
}

func (f *fakeEvents) TouchLastSeen(ctx context.Context, eventID int64, at time.Time) error {
	f.touched[eventID] = at
	return nil
}

// Grounded on spec.md §8's scenario 1 ("Feed ingest creates one event"): a
// brand-new URL with no matching anchors/simhash creates a new HYDRATING
// event, base score 40.
func TestOrganize_NewDocumentCreatesEvent(t *testing.T) {
	docs := newFakeDocs()
	events := newFakeEvents()
	o := &Organizer{Docs: docs, Events: events}

	result, err := o.Organize(context.Background(), Item{
		SourceID: "src1",
		Tier:     2,
		URL:      "https://exemplo.gov.br/n1",
		Title:    "CGU abre investigação",
		Text:     "Processo com CNPJ 12.345.678/0001-99 foi aberto.",
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected a new event to be created")
	}
	if len(events.created) != 1 {
		t.Fatalf("expected 1 created event, got %d", len(events.created))
	}
	if events.created[0].ScorePlantao != baseScore {
		t.Fatalf("expected base score %v, got %v", baseScore, events.created[0].ScorePlantao)
	}
	if len(docs.saved) != 1 {
		t.Fatalf("expected 1 saved document, got %d", len(docs.saved))
	}
}

func TestOrganize_Tier1SourceBoostsBaseScore(t *testing.T) {
	docs := newFakeDocs()
	events := newFakeEvents()
	o := &Organizer{Docs: docs, Events: events}

	_, err := o.Organize(context.Background(), Item{
		SourceID: "src1",
		Tier:     1,
		URL:      "https://exemplo.gov.br/n2",
		Text:     "texto qualquer",
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events.created[0].ScorePlantao != tier1Score {
		t.Fatalf("expected tier-1 score %v, got %v", tier1Score, events.created[0].ScorePlantao)
	}
}

// Grounded on organizer.py's "Document {url} already exists with same hash.
// Skipping."
func TestOrganize_SameContentHashIsDropped(t *testing.T) {
	docs := newFakeDocs()
	docs.byURL["src1|https://exemplo.gov.br/n1"] = postgres.Document{ID: 5, Version: 1, ContentHash: "abc"}
	events := newFakeEvents()
	o := &Organizer{Docs: docs, Events: events}

	result, err := o.Organize(context.Background(), Item{
		SourceID:    "src1",
		URL:         "https://exemplo.gov.br/n1",
		ContentHash: "abc",
		Text:        "mesmo conteudo",
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %s", result.Outcome)
	}
	if len(docs.saved) != 0 {
		t.Fatalf("expected no document saved for a duplicate")
	}
}

func TestOrganize_DifferentHashBumpsVersionAndLinksToPriorEvent(t *testing.T) {
	docs := newFakeDocs()
	docs.byURL["src1|https://exemplo.gov.br/n1"] = postgres.Document{ID: 5, Version: 1, ContentHash: "abc"}
	events := newFakeEvents()
	events.linkedDocEvents[5] = 900

	o := &Organizer{Docs: docs, Events: events}

	result, err := o.Organize(context.Background(), Item{
		SourceID:    "src1",
		URL:         "https://exemplo.gov.br/n1",
		ContentHash: "different",
		Text:        "texto atualizado",
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created {
		t.Fatalf("expected linkage to the prior document's event, not creation")
	}
	if result.EventID != 900 {
		t.Fatalf("expected event 900, got %d", result.EventID)
	}
	if result.LinkMethod != LinkPriorVersion {
		t.Fatalf("expected PRIOR_VERSION linkage, got %s", result.LinkMethod)
	}
	if docs.saved[0].Document.Version != 2 {
		t.Fatalf("expected version 2, got %d", docs.saved[0].Document.Version)
	}
}

// Grounded on spec.md §4.7 step 5a: a strong anchor seen on another
// document's event within the window wins before prior-version or simhash.
func TestOrganize_StrongAnchorLinkageTakesPriority(t *testing.T) {
	docs := newFakeDocs()
	docs.anchorRows["CNPJ|12345678000199"] = []postgres.DocAnchor{{DocumentID: 42}}
	events := newFakeEvents()
	events.linkedDocEvents[42] = 777

	o := &Organizer{Docs: docs, Events: events}

	result, err := o.Organize(context.Background(), Item{
		SourceID: "src1",
		URL:      "https://exemplo.gov.br/novo",
		Text:     "Processo com CNPJ 12.345.678/0001-99 em andamento.",
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.LinkMethod != LinkStrongAnchor {
		t.Fatalf("expected STRONG_ANCHOR linkage, got %s", result.LinkMethod)
	}
	if result.EventID != 777 {
		t.Fatalf("expected event 777, got %d", result.EventID)
	}
	if _, touched := events.touched[777]; !touched {
		t.Fatalf("expected last_seen_at to be touched on linkage")
	}
}

func TestOrganize_SimHashProximityLinksWhenNoAnchorOrVersionMatch(t *testing.T) {
	docs := newFakeDocs()
	docs.simCandidates = []postgres.Document{
		{ID: 11, SimHash: simHashOf("congresso nacional aprova reforma tributaria do governo federal")},
	}
	events := newFakeEvents()
	events.linkedDocEvents[11] = 55

	o := &Organizer{Docs: docs, Events: events}

	result, err := o.Organize(context.Background(), Item{
		SourceID: "src1",
		URL:      "https://exemplo.gov.br/outro",
		Text:     "congresso nacional aprova reforma tributaria do governo federal",
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.LinkMethod != LinkSimHash {
		t.Fatalf("expected SIMHASH linkage, got %s (event %d)", result.LinkMethod, result.EventID)
	}
}

func simHashOf(text string) *uint64 {
	v, _ := simhash.Compute(text)
	return &v
}

// TestEventStateWired checks that eventstate.Hydrating, the initial state
// organizer.go passes to CreateEvent for a new event, has the value
// HYDRATING.
func TestEventStateWired(t *testing.T) {
	if string(eventstate.Hydrating) != "HYDRATING" {
		t.Fatalf("unexpected HYDRATING constant value: %s", eventstate.Hydrating)
	}
}
