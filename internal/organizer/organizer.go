// Package organizer implements the event builder of spec.md §4.7: turns one
// extracted Document into either a new Event or a link into an existing one,
// via versioning, anchor/evidence extraction, and deferred-merge linkage.
//
// Grounded on original_source/backend/app/workers/organizer.py
// (_process_document_and_event), generalized from its SQLAlchemy session
// into narrow repository-shaped interfaces so it is unit-testable without a
// live Postgres connection, in the style of internal/eventstate.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/anchor"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/lane"
	"github.com/pautaradar/newsradar/internal/simhash"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// linkageWindow is the "last 12 h" lookback spec.md §4.7 step 5 uses for
// both strong-anchor and SimHash linkage.
const linkageWindow = 12 * time.Hour

// simHashThreshold is the Hamming-distance cutoff for a SimHash match
// (spec.md §4.6/§4.7 step 5c).
const simHashThreshold = 12

const (
	baseScore  = 40.0
	tier1Score = 75.0
)

// Outcome classifies what Organize did with an incoming item, mirroring the
// newsradar_documents_organized_total metric's label values.
type Outcome string

const (
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeNewVersion Outcome = "new_version"
)

// LinkMethod records how a document was attached to its event, or "" when a
// new event was created instead.
type LinkMethod string

const (
	LinkStrongAnchor LinkMethod = "STRONG_ANCHOR"
	LinkPriorVersion LinkMethod = "PRIOR_VERSION"
	LinkSimHash      LinkMethod = "SIMHASH"
)

// strongAnchorKinds are the anchor kinds eligible for cross-document
// linkage (spec.md §4.7 step 5a); narrower than the canonicalizer's set,
// which also includes TCU.
var strongAnchorKinds = map[anchor.Kind]bool{
	anchor.KindCNPJ: true,
	anchor.KindCNJ:  true,
	anchor.KindPL:   true,
	anchor.KindSEI:  true,
}

// entityLabelMap derives EntityMention rows from anchors (spec.md §4.7 step
// 4): only these anchor kinds carry an entity label.
var entityLabelMap = map[anchor.Kind]string{
	anchor.KindCNPJ: "ORG",
	anchor.KindCPF:  "PER",
	anchor.KindCNJ:  "GOV",
	anchor.KindSEI:  "GOV",
	anchor.KindTCU:  "GOV",
	anchor.KindATO:  "GOV",
	anchor.KindPL:   "EVENT",
}

// Item is one extracted item handed to the organizer by the extractor
// pipeline (spec.md §4.4/§4.7).
type Item struct {
	SourceID     string
	Tier         int
	IsOfficial   bool
	URL          string
	CanonicalURL string
	Title        string
	Text         string
	ContentHash  string
	Author       string
	Lang         string
	PublishedAt  *time.Time
	ModifiedAt   *time.Time
	SnapshotID   *int64

	HydrationPool string

	// Lane inference hints (spec.md §4.7 step 2).
	ExplicitLane string
	Editoria     string
	Topic        string
	SourceScope  string
}

// Result reports what Organize did, for logging, metrics, and the caller's
// decision to enqueue a scoring task (spec.md §4.7 step 7).
type Result struct {
	EventID    int64
	DocumentID int64
	Outcome    Outcome
	Created    bool
	LinkMethod LinkMethod
}

// DocumentStore is the subset of postgres.DocumentStore the organizer needs.
type DocumentStore interface {
	FindByURL(ctx context.Context, sourceID, url string) (postgres.Document, error)
	SaveDocument(ctx context.Context, b postgres.DocumentBundle) (int64, error)
	AnchorsByNormalized(ctx context.Context, kind, normalized string, since time.Time, excludeDocumentID int64) ([]postgres.DocAnchor, error)
	SimHashCandidates(ctx context.Context, since time.Time, excludeDocumentID int64) ([]postgres.Document, error)
}

// EventStore is the subset of postgres.EventStore the organizer needs.
type EventStore interface {
	EventIDForDocument(ctx context.Context, documentID int64) (int64, bool, error)
	CreateEvent(ctx context.Context, ev postgres.Event, primaryDocID int64, linkReason string, initialState string) (int64, error)
	LinkDocument(ctx context.Context, eventID, documentID int64, reason string) error
	TouchLastSeen(ctx context.Context, eventID int64, at time.Time) error
}

// YieldMonitor is the narrow view of the yield/starvation monitor (spec.md
// §4.12) the organizer drives on every item (spec.md §4.7 step 3).
type YieldMonitor interface {
	UpdateYield(sourceID string, anchorsFound int, statusCode int)
	CheckStarvation(sourceID string) bool
}

// ScoreEnqueuer dispatches the scoring task spec.md §4.7 step 7 requires
// after every organized item. Implemented by internal/queue.
type ScoreEnqueuer interface {
	EnqueueScore(ctx context.Context, eventID int64) error
}

// Organizer wires the anchor, SimHash, and lane packages into the event
// builder contract of spec.md §4.7.
type Organizer struct {
	Docs    DocumentStore
	Events  EventStore
	Yield   YieldMonitor
	Score   ScoreEnqueuer
	Metrics *metrics.Metrics
	Log     *logging.Logger
}

// Organize runs the full seven-step event-builder contract for one
// extracted item.
func (o *Organizer) Organize(ctx context.Context, item Item, now time.Time) (Result, error) {
	// 1. Versioning check.
	existing, hasExisting, err := o.lookupPriorVersion(ctx, item)
	if err != nil {
		return Result{}, err
	}
	versionNo := 1
	var priorVersionID *int64
	if hasExisting {
		if existing.ContentHash == item.ContentHash {
			o.observe(item.SourceID, OutcomeDuplicate)
			return Result{Outcome: OutcomeDuplicate}, nil
		}
		versionNo = existing.Version + 1
		id := existing.ID
		priorVersionID = &id
	}

	// 2. Lane inference.
	editorialLane := lane.InferEditorialLane(lane.InferenceInput{
		ExplicitLane: item.ExplicitLane,
		Editoria:     item.Editoria,
		Topic:        item.Topic,
		Title:        item.Title,
		Snippet:      truncate(item.Text, 500),
		SourceScope:  item.SourceScope,
	})

	// 3. Anchor/evidence extraction, yield baseline, starvation check.
	matches := anchor.Extract(item.Text)
	_, features := anchor.EvidenceScore(matches)
	shash, hasShash := simhash.Compute(item.Text)

	if o.Yield != nil {
		o.Yield.UpdateYield(item.SourceID, len(matches), 200)
		if item.IsOfficial && o.Yield.CheckStarvation(item.SourceID) && o.Log != nil {
			o.Log.WithField("source_id", item.SourceID).Warn("DATA_STARVATION: official source below expected yield baseline")
		}
	}

	// 4. Build and save the Document plus its derived rows.
	bundle := buildBundle(item, matches, features, editorialLane, shash, hasShash, versionNo, priorVersionID, now)
	docID, err := o.Docs.SaveDocument(ctx, bundle)
	if err != nil {
		return Result{}, fmt.Errorf("organizer: save document: %w", err)
	}

	// 5. Deferred-merge linkage.
	targetEventID, method, err := o.linkTarget(ctx, matches, priorVersionID, shash, hasShash, docID, now)
	if err != nil {
		return Result{}, err
	}

	result := Result{DocumentID: docID, Outcome: OutcomeNewVersion}

	// 6. Finalize event association.
	if targetEventID != 0 {
		if err := o.Events.LinkDocument(ctx, targetEventID, docID, string(method)); err != nil {
			return Result{}, fmt.Errorf("organizer: link document: %w", err)
		}
		if err := o.Events.TouchLastSeen(ctx, targetEventID, now); err != nil {
			return Result{}, fmt.Errorf("organizer: touch last seen: %w", err)
		}
		result.EventID = targetEventID
		result.LinkMethod = method
	} else {
		score := baseScore
		tierLabel := "other"
		if item.Tier == 1 {
			score = tier1Score
			tierLabel = "1"
		}
		summary := item.Title
		if summary == "" {
			summary = fmt.Sprintf("Sinal em %s", item.SourceID)
		}
		newID, err := o.Events.CreateEvent(ctx, postgres.Event{
			Lane:          string(editorialLane),
			Title:         summary,
			Summary:       summary,
			ScorePlantao:  score,
			HydrationPool: item.HydrationPool,
		}, docID, "ORGANIZER_PRIMARY", string(eventstate.Hydrating))
		if err != nil {
			return Result{}, fmt.Errorf("organizer: create event: %w", err)
		}
		result.EventID = newID
		result.Created = true
		if o.Metrics != nil {
			o.Metrics.EventsCreatedTotal.WithLabelValues(tierLabel).Inc()
		}
	}

	o.observe(item.SourceID, result.Outcome)
	if o.Metrics != nil {
		method := string(result.LinkMethod)
		if method == "" {
			method = "new_event"
		}
		o.Metrics.EventLinkageTotal.WithLabelValues(method).Inc()
	}
	if o.Log != nil {
		o.Log.WithField("event_id", result.EventID).WithField("document_id", docID).
			WithField("created", result.Created).Info("organizer: document organized")
	}

	// 7. Enqueue scoring.
	if o.Score != nil {
		if err := o.Score.EnqueueScore(ctx, result.EventID); err != nil {
			return result, fmt.Errorf("organizer: enqueue score: %w", err)
		}
	}

	return result, nil
}

func (o *Organizer) lookupPriorVersion(ctx context.Context, item Item) (postgres.Document, bool, error) {
	doc, err := o.Docs.FindByURL(ctx, item.SourceID, item.URL)
	if err == nil {
		return doc, true, nil
	}
	if errors.Is(err, postgres.ErrNotFound) {
		if item.CanonicalURL != "" && item.CanonicalURL != item.URL {
			doc, err = o.Docs.FindByURL(ctx, item.SourceID, item.CanonicalURL)
			if err == nil {
				return doc, true, nil
			}
			if errors.Is(err, postgres.ErrNotFound) {
				return postgres.Document{}, false, nil
			}
			return postgres.Document{}, false, err
		}
		return postgres.Document{}, false, nil
	}
	return postgres.Document{}, false, err
}

// linkTarget applies spec.md §4.7 step 5's three linkage rules in priority
// order; the first rule that finds an event wins.
func (o *Organizer) linkTarget(ctx context.Context, matches []anchor.Match, priorVersionID *int64, shash uint64, hasShash bool, docID int64, now time.Time) (int64, LinkMethod, error) {
	since := now.Add(-linkageWindow)

	for _, m := range matches {
		if !strongAnchorKinds[m.Kind] {
			continue
		}
		candidates, err := o.Docs.AnchorsByNormalized(ctx, string(m.Kind), m.Normalized, since, docID)
		if err != nil {
			return 0, "", fmt.Errorf("organizer: strong anchor lookup: %w", err)
		}
		for _, c := range candidates {
			eventID, ok, err := o.Events.EventIDForDocument(ctx, c.DocumentID)
			if err != nil {
				return 0, "", fmt.Errorf("organizer: event lookup for anchor candidate: %w", err)
			}
			if ok {
				return eventID, LinkStrongAnchor, nil
			}
		}
	}

	if priorVersionID != nil {
		eventID, ok, err := o.Events.EventIDForDocument(ctx, *priorVersionID)
		if err != nil {
			return 0, "", fmt.Errorf("organizer: event lookup for prior version: %w", err)
		}
		if ok {
			return eventID, LinkPriorVersion, nil
		}
	}

	if hasShash {
		docs, err := o.Docs.SimHashCandidates(ctx, since, docID)
		if err != nil {
			return 0, "", fmt.Errorf("organizer: simhash candidates: %w", err)
		}
		candidates := make([]simhash.Candidate, 0, len(docs))
		for _, d := range docs {
			if d.SimHash == nil {
				continue
			}
			candidates = append(candidates, simhash.Candidate{DocumentID: d.ID, SimHash: *d.SimHash})
		}
		if best, ok := simhash.NearestWithinThreshold(shash, candidates, simHashThreshold); ok {
			eventID, ok, err := o.Events.EventIDForDocument(ctx, best.DocumentID)
			if err != nil {
				return 0, "", fmt.Errorf("organizer: event lookup for simhash match: %w", err)
			}
			if ok {
				return eventID, LinkSimHash, nil
			}
		}
	}

	return 0, "", nil
}

func (o *Organizer) observe(sourceID string, outcome Outcome) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.DocumentsOrganizedTotal.WithLabelValues(string(outcome)).Inc()
}

func buildBundle(item Item, matches []anchor.Match, features []anchor.Feature, editorialLane lane.Lane, shash uint64, hasShash bool, versionNo int, priorVersionID *int64, now time.Time) postgres.DocumentBundle {
	title := item.Title
	if title == "" {
		title = fmt.Sprintf("Sinal: %s", item.SourceID)
	}

	doc := postgres.Document{
		SourceID:       item.SourceID,
		SnapshotID:     item.SnapshotID,
		URL:            item.URL,
		CanonicalURL:   item.CanonicalURL,
		Title:          title,
		Text:           truncate(item.Text, 20000),
		Author:         item.Author,
		Lang:           item.Lang,
		PublishedAt:    item.PublishedAt,
		ModifiedAt:     item.ModifiedAt,
		ContentHash:    item.ContentHash,
		Lane:           string(editorialLane),
		Version:        versionNo,
		PriorVersionID: priorVersionID,
		CreatedAt:      now,
	}
	if hasShash {
		v := shash
		doc.SimHash = &v
	}

	anchors := make([]postgres.DocAnchor, 0, len(matches))
	var entities []postgres.EntityMention
	for _, m := range matches {
		anchors = append(anchors, postgres.DocAnchor{
			Kind:       string(m.Kind),
			Value:      m.Value,
			Normalized: m.Normalized,
			Weight:     anchor.Weight[m.Kind],
		})
		if label, ok := entityLabelMap[m.Kind]; ok {
			entities = append(entities, postgres.EntityMention{
				EntityType:  label,
				EntityValue: m.Value,
				Normalized:  m.Normalized,
			})
		}
	}

	evidence := make([]postgres.DocEvidenceFeature, 0, len(features))
	for _, f := range features {
		evidence = append(evidence, postgres.DocEvidenceFeature{
			Kind:  string(f.Kind),
			Count: f.Count,
			Score: anchor.Weight[f.Kind] * float64(f.Count),
		})
	}

	return postgres.DocumentBundle{
		Document: doc,
		Anchors:  anchors,
		Evidence: evidence,
		Entities: entities,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
