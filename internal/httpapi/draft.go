package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/pautaradar/newsradar/internal/anchor"
	"github.com/pautaradar/newsradar/internal/scoring"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

const (
	draftMaxDocs     = 5
	draftMaxCharsPer = 3000
)

// timelineEntry is one document's contribution to a draft's timeline.
type timelineEntry struct {
	DocumentID  int64      `json:"document_id"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// fieldConfidence is the per-field confidence block spec.md §6 names.
type fieldConfidence struct {
	Person float64 `json:"person"`
	Date   float64 `json:"date"`
	Value  float64 `json:"value"`
	Org    float64 `json:"org"`
}

// draftAnchor is one deduplicated anchor surfaced in a draft payload.
type draftAnchor struct {
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	Normalized string `json:"normalized"`
}

// draftPayload is POST /cms/draft/{event_id}'s response shape (spec.md §6).
type draftPayload struct {
	Title           string          `json:"title"`
	CleanText       []string        `json:"clean_text"`
	Sources         []string        `json:"sources"`
	Anchors         []draftAnchor   `json:"anchors"`
	EvidenceScore   float64         `json:"evidence_score"`
	Reasons         []string        `json:"reasons"`
	Timeline        []timelineEntry `json:"timeline"`
	Confidence      float64         `json:"confidence"`
	FieldConfidence fieldConfidence `json:"field_confidence"`
}

// handleDraft serves POST /cms/draft/{event_id} (spec.md §6): it assembles
// a CMS-ready payload from an event's linked documents. The draft's
// clean_text is the raw linked document text, truncated per spec.md's
// bound; the external drafting collaborator (queue task
// draft.run_drafting) is what turns this into prose, a step out of this
// service's scope.
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	ev, err := s.Events.GetEvent(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		notFound(w, "event not found")
		return
	}
	if err != nil {
		internalError(w, "failed to load event")
		return
	}
	if ev.CanonicalEventID != nil {
		writeErrorWithCode(w, http.StatusConflict, "EVENT_TOMBSTONE", "event has been merged away")
		return
	}

	docs, err := s.Events.DocumentsForEvent(r.Context(), id)
	if err != nil {
		internalError(w, "failed to load event documents")
		return
	}
	if len(docs) == 0 {
		badRequest(w, "event has no linked documents")
		return
	}

	payload, err := s.buildDraft(r.Context(), ev, docs)
	if err != nil {
		internalError(w, "failed to assemble draft")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) buildDraft(ctx context.Context, ev postgres.Event, docs []postgres.Document) (draftPayload, error) {
	sortDocsByPublished(docs)

	timeline := make([]timelineEntry, 0, len(docs))
	sourceSet := map[string]bool{}
	sources := make([]string, 0, len(docs))

	var evidenceScore float64
	var personCount, dateCount, valueCount, orgCount int
	var anchors []draftAnchor
	seenAnchor := map[string]bool{}

	cleanText := make([]string, 0, draftMaxDocs)

	for i, d := range docs {
		timeline = append(timeline, timelineEntry{DocumentID: d.ID, URL: d.URL, PublishedAt: d.PublishedAt})
		if !sourceSet[d.SourceID] {
			sourceSet[d.SourceID] = true
			sources = append(sources, d.SourceID)
		}

		if i < draftMaxDocs {
			text := d.Text
			if len(text) > draftMaxCharsPer {
				text = text[:draftMaxCharsPer]
			}
			cleanText = append(cleanText, text)

			features, err := s.Documents.EvidenceFeaturesForDocument(ctx, d.ID)
			if err != nil {
				return draftPayload{}, err
			}
			for _, f := range features {
				evidenceScore += f.Score
				switch anchor.Kind(f.Kind) {
				case anchor.KindDATA:
					dateCount += f.Count
				case anchor.KindVALOR:
					valueCount += f.Count
				}
			}

			docAnchors, err := s.Documents.AnchorsForDocument(ctx, d.ID)
			if err != nil {
				return draftPayload{}, err
			}
			for _, a := range docAnchors {
				key := a.Kind + "|" + a.Normalized
				if seenAnchor[key] {
					continue
				}
				seenAnchor[key] = true
				anchors = append(anchors, draftAnchor{Kind: a.Kind, Value: a.Value, Normalized: a.Normalized})
			}

			entities, err := s.Documents.EntityMentionsForDocument(ctx, d.ID)
			if err != nil {
				return draftPayload{}, err
			}
			for _, e := range entities {
				switch e.EntityType {
				case "PER":
					personCount++
				case "ORG":
					orgCount++
				}
			}
		}
	}

	if evidenceScore > anchor.EvidenceCap {
		evidenceScore = anchor.EvidenceCap
	}

	var reasons []string
	if sc, err := s.Events.LatestScore(ctx, ev.ID, scoring.KindPlantao); err == nil {
		reasons = append(reasons, sc.Reasons...)
	}
	if sc, err := s.Events.LatestScore(ctx, ev.ID, scoring.KindOceano); err == nil {
		reasons = append(reasons, sc.Reasons...)
	}

	confidence := confidenceFromSignal(evidenceScore, len(docs))

	title := ev.Title
	if title == "" && len(docs) > 0 {
		title = docs[0].Title
	}

	return draftPayload{
		Title:         title,
		CleanText:     cleanText,
		Sources:       sources,
		Anchors:       anchors,
		EvidenceScore: evidenceScore,
		Reasons:       reasons,
		Timeline:      timeline,
		Confidence:    confidence,
		FieldConfidence: fieldConfidence{
			Person: fieldRatio(personCount),
			Date:   fieldRatio(dateCount),
			Value:  fieldRatio(valueCount),
			Org:    fieldRatio(orgCount),
		},
	}, nil
}

// fieldRatio saturates a raw field-mention count into a [0,1] confidence,
// three corroborating mentions being enough to call a field fully
// confident (spec.md §6's field_confidence has no normative formula; this
// mirrors anchor.EvidenceScore's own saturating-count shape).
func fieldRatio(count int) float64 {
	const saturateAt = 3
	if count >= saturateAt {
		return 1.0
	}
	return float64(count) / float64(saturateAt)
}

// confidenceFromSignal blends the capped evidence score with document
// corroboration count into an overall [0,1] confidence.
func confidenceFromSignal(evidenceScore float64, docCount int) float64 {
	evidencePart := evidenceScore / anchor.EvidenceCap
	corroborationPart := float64(docCount) / float64(docCount+2)
	c := 0.6*evidencePart + 0.4*corroborationPart
	if c > 1 {
		c = 1
	}
	return c
}

func sortDocsByPublished(docs []postgres.Document) {
	sort.Slice(docs, func(i, j int) bool {
		pi, pj := docs[i].PublishedAt, docs[j].PublishedAt
		switch {
		case pi == nil && pj == nil:
			return docs[i].ID < docs[j].ID
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.After(*pj)
		}
	})
}
