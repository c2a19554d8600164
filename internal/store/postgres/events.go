package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EventStore implements the Event aggregate's repository methods
// (spec.md §3, §4.7, §4.9, §4.10).
type EventStore struct {
	DB *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{DB: db}
}

// CreateEvent inserts a new Event, its initial EventDoc link, and its
// initial EventState in a single transaction (spec.md §4.7 step 3).
func (s *EventStore) CreateEvent(ctx context.Context, ev Event, primaryDocID int64, linkReason string, initialState string) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (status, lane, title, summary, score_plantao, primary_document_id, hydration_pool, first_seen_at, last_seen_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, initialState, ev.Lane, ev.Title, ev.Summary, ev.ScorePlantao, primaryDocID, ev.HydrationPool, now, now, now).Scan(&id)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET event_id = $1 WHERE id = $2
	`, id, primaryDocID); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_docs (event_id, document_id, link_reason, linked_at) VALUES ($1,$2,$3,$4)
	`, id, primaryDocID, linkReason, now); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_states (event_id, state, entered_at, reason) VALUES ($1,$2,$3,$4)
	`, id, initialState, now, "created"); err != nil {
		return 0, err
	}

	return id, tx.Commit()
}

// EventIDForDocument returns the event a document is already linked to, if
// any, for the organizer's prior-version and anchor/simhash linkage lookups
// (spec.md §4.7 step 5).
func (s *EventStore) EventIDForDocument(ctx context.Context, documentID int64) (int64, bool, error) {
	var eventID int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT event_id FROM event_docs WHERE document_id = $1 LIMIT 1
	`, documentID).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return eventID, true, nil
}

// TouchLastSeen advances an event's last_seen_at on new document linkage
// (spec.md §4.7 step 6).
func (s *EventStore) TouchLastSeen(ctx context.Context, eventID int64, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE events SET last_seen_at = $1, updated_at = now() WHERE id = $2
	`, at, eventID)
	return err
}

// LinkDocument attaches an additional document to an existing event
// (spec.md §4.7 step 2).
func (s *EventStore) LinkDocument(ctx context.Context, eventID, documentID int64, reason string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_docs (event_id, document_id, link_reason, linked_at)
		VALUES ($1,$2,$3, now())
		ON CONFLICT (event_id, document_id) DO NOTHING
	`, eventID, documentID, reason); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET event_id = $1 WHERE id = $2`, eventID, documentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE events SET updated_at = now() WHERE id = $1`, eventID); err != nil {
		return err
	}
	return tx.Commit()
}

const eventColumns = `id, canonical_event_id, status, lane, title, summary, flags, score_plantao, primary_document_id, hydration_pool, first_seen_at, last_seen_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }, ev *Event) error {
	return row.Scan(&ev.ID, &ev.CanonicalEventID, &ev.Status, &ev.Lane, &ev.Title, &ev.Summary, pq.Array(&ev.Flags), &ev.ScorePlantao, &ev.PrimaryDocumentID, &ev.HydrationPool, &ev.FirstSeenAt, &ev.LastSeenAt, &ev.UpdatedAt)
}

// GetEvent fetches an event row by id. Reading a tombstone (CanonicalEventID
// set) succeeds; callers apply the feed-redirect rule themselves.
func (s *EventStore) GetEvent(ctx context.Context, id int64) (Event, error) {
	var ev Event
	err := scanEvent(s.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id), &ev)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return ev, err
}

// ActiveEvents returns non-tombstone events ordered by score_plantao
// descending, for the /api/plantao and /api/events feed endpoints.
func (s *EventStore) ActiveEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE canonical_event_id IS NULL
		ORDER BY score_plantao DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := scanEvent(rows, &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpdateScore materializes the latest Plantão score and derived flags onto
// the Event row (spec.md §3's "score_plantao materialized for ordering").
func (s *EventStore) UpdateScore(ctx context.Context, eventID int64, scorePlantao float64, flags []string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE events SET score_plantao = $1, flags = $2 WHERE id = $3
	`, scorePlantao, pq.Array(flags), eventID)
	return err
}

// DocumentsForEvent returns every document linked to an event, for
// coverage-lag and corroboration computations (spec.md §4.8).
func (s *EventStore) DocumentsForEvent(ctx context.Context, eventID int64) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT d.id, d.source_id, d.snapshot_id, d.url, d.canonical_url, d.title, d.text, d.author, d.lang, d.published_at, d.modified_at, d.content_hash, d.simhash, d.lane, d.version, d.prior_version_id, d.event_id, d.created_at
		FROM documents d
		JOIN event_docs ed ON ed.document_id = d.id
		WHERE ed.event_id = $1
		ORDER BY d.created_at
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.SourceID, &d.SnapshotID, &d.URL, &d.CanonicalURL, &d.Title, &d.Text, &d.Author, &d.Lang, &d.PublishedAt, &d.ModifiedAt, &d.ContentHash, &d.SimHash, &d.Lane, &d.Version, &d.PriorVersionID, &d.EventID, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetState returns an event's current state-machine position.
func (s *EventStore) GetState(ctx context.Context, eventID int64) (EventState, error) {
	var st EventState
	err := s.DB.QueryRowContext(ctx, `
		SELECT event_id, state, entered_at, expires_at, reason FROM event_states WHERE event_id = $1
	`, eventID).Scan(&st.EventID, &st.State, &st.EnteredAt, &st.ExpiresAt, &st.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return EventState{}, ErrNotFound
	}
	return st, err
}

// TransitionState overwrites an event's state-machine position.
func (s *EventStore) TransitionState(ctx context.Context, st EventState) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE event_states SET state = $1, entered_at = $2, expires_at = $3, reason = $4
		WHERE event_id = $5
	`, st.State, st.EnteredAt, st.ExpiresAt, st.Reason, st.EventID)
	return err
}

// ExpiredStates returns event states whose expires_at has passed, for the
// maintenance tick (spec.md §4.9).
func (s *EventStore) ExpiredStates(ctx context.Context, now time.Time, limit int) ([]EventState, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT event_id, state, entered_at, expires_at, reason
		FROM event_states WHERE expires_at IS NOT NULL AND expires_at <= $1
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventState
	for rows.Next() {
		var st EventState
		if err := rows.Scan(&st.EventID, &st.State, &st.EnteredAt, &st.ExpiresAt, &st.Reason); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveScore inserts a new scoring pass for an event.
func (s *EventStore) SaveScore(ctx context.Context, sc EventScore) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO event_scores (event_id, kind, score, reasons, computed_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, sc.EventID, sc.Kind, sc.Score, pq.Array(sc.Reasons), sc.ComputedAt).Scan(&id)
	return id, err
}

// LatestScore returns the most recent score of a kind for an event.
func (s *EventStore) LatestScore(ctx context.Context, eventID int64, kind string) (EventScore, error) {
	var sc EventScore
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, event_id, kind, score, reasons, computed_at
		FROM event_scores WHERE event_id = $1 AND kind = $2
		ORDER BY computed_at DESC LIMIT 1
	`, eventID, kind).Scan(&sc.ID, &sc.EventID, &sc.Kind, &sc.Score, pq.Array(&sc.Reasons), &sc.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EventScore{}, ErrNotFound
	}
	return sc, err
}

// ScoringAggregates holds the per-event inputs spec.md §4.8 names before
// the dual score formulas and flag/state derivation run over them.
type ScoringAggregates struct {
	Tier          int
	SourceCount   int
	IsOfficial    bool
	HasTier1      bool
	VelocityDocs  int
	EvidenceScore float64
	HasPDF        bool
}

// ScoringAggregates computes §4.8's aggregate inputs for one event: lowest
// (best) tier and official-presence across contributing sources, distinct
// source count, tier-1 presence (for coverage-lag), documents linked in the
// last 30 minutes (velocity), the max DocEvidenceFeature score among linked
// documents, and PDF-anchor presence. Grounded on DocumentsForEvent's
// documents/event_docs join, widened with a sources join for tier/official
// and left joins for evidence features and anchors so every input comes
// back in one round trip.
func (s *EventStore) ScoringAggregates(ctx context.Context, eventID int64, now time.Time) (ScoringAggregates, error) {
	var agg ScoringAggregates
	var tier sql.NullInt64
	var evidence sql.NullFloat64
	err := s.DB.QueryRowContext(ctx, `
		SELECT
			COALESCE(MIN(src.tier), 0) AS tier,
			COUNT(DISTINCT d.source_id) AS source_count,
			COALESCE(BOOL_OR(src.official), false) AS is_official,
			COALESCE(BOOL_OR(src.tier = 1), false) AS has_tier1,
			COUNT(DISTINCT d.id) FILTER (WHERE ed.linked_at >= $2) AS velocity_docs,
			MAX(def.score) AS evidence_score,
			COALESCE(BOOL_OR(da.kind = 'PDF'), false) AS has_pdf
		FROM event_docs ed
		JOIN documents d ON d.id = ed.document_id
		JOIN sources src ON src.id = d.source_id
		LEFT JOIN doc_evidence_features def ON def.document_id = d.id
		LEFT JOIN doc_anchors da ON da.document_id = d.id
		WHERE ed.event_id = $1
	`, eventID, now.Add(-30*time.Minute)).Scan(
		&tier, &agg.SourceCount, &agg.IsOfficial, &agg.HasTier1, &agg.VelocityDocs, &evidence, &agg.HasPDF,
	)
	if err != nil {
		return ScoringAggregates{}, err
	}
	agg.Tier = int(tier.Int64)
	agg.EvidenceScore = evidence.Float64
	return agg, nil
}

// MergeResult reports what a merge actually moved, for the editorial API
// response and the MergeAudit evidence payload (spec.md §4.10, §6).
type MergeResult struct {
	Merged      bool
	MovedDocs   int
	DedupedDocs int
}

// MergeEvents reassigns every document and link from absorbed into
// surviving, tombstones absorbed, and records the merge audit atomically
// (spec.md §4.10), grounded on
// original_source/backend/app/merge_service.py's merge_event_into: dedupe
// doc_ids already on the survivor, demote/promote primary, widen the
// survivor's first/last-seen bounds, and fill summary/lane only when empty.
func (s *EventStore) MergeEvents(ctx context.Context, survivingID, absorbedID int64, reason, idempotencyKey string) (MergeResult, error) {
	if survivingID == absorbedID {
		return MergeResult{}, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return MergeResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO merge_audits (surviving_event_id, absorbed_event_id, reason, idempotency_key, created_at)
		VALUES ($1,$2,$3,$4, now())
		ON CONFLICT (idempotency_key) DO NOTHING
	`, survivingID, absorbedID, reason, idempotencyKey)
	if err != nil {
		return MergeResult{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return MergeResult{}, err
	} else if n == 0 {
		return MergeResult{}, tx.Commit()
	}

	var surviving, absorbed Event
	if err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, survivingID), &surviving); err != nil {
		return MergeResult{}, err
	}
	if err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, absorbedID), &absorbed); err != nil {
		return MergeResult{}, err
	}

	dedupe, err := tx.ExecContext(ctx, `
		DELETE FROM event_docs a USING event_docs b
		WHERE a.event_id = $2 AND b.event_id = $1 AND a.document_id = b.document_id
	`, survivingID, absorbedID)
	if err != nil {
		return MergeResult{}, err
	}
	dedupedN, _ := dedupe.RowsAffected()

	moveRes, err := tx.ExecContext(ctx, `
		UPDATE event_docs SET event_id = $1 WHERE event_id = $2
	`, survivingID, absorbedID)
	if err != nil {
		return MergeResult{}, err
	}
	movedN, _ := moveRes.RowsAffected()

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET event_id = $1 WHERE event_id = $2`, survivingID, absorbedID); err != nil {
		return MergeResult{}, err
	}

	newPrimary := surviving.PrimaryDocumentID
	if newPrimary == nil {
		if absorbed.PrimaryDocumentID != nil {
			newPrimary = absorbed.PrimaryDocumentID
		} else {
			var oldest int64
			err := tx.QueryRowContext(ctx, `
				SELECT document_id FROM event_docs WHERE event_id = $1 ORDER BY linked_at ASC LIMIT 1
			`, survivingID).Scan(&oldest)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return MergeResult{}, err
			}
			if err == nil {
				newPrimary = &oldest
			}
		}
	}

	firstSeen := surviving.FirstSeenAt
	if absorbed.FirstSeenAt.Before(firstSeen) {
		firstSeen = absorbed.FirstSeenAt
	}
	lastSeen := surviving.LastSeenAt
	if absorbed.LastSeenAt.After(lastSeen) {
		lastSeen = absorbed.LastSeenAt
	}
	summary := surviving.Summary
	if summary == "" {
		summary = absorbed.Summary
	}
	lane := surviving.Lane
	if lane == "" {
		lane = absorbed.Lane
	}
	score := surviving.ScorePlantao
	if absorbed.ScorePlantao > score {
		score = absorbed.ScorePlantao
	}
	flags := unionFlags(surviving.Flags, absorbed.Flags)

	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET
			primary_document_id = $1, first_seen_at = $2, last_seen_at = $3,
			summary = $4, lane = $5, score_plantao = $6, flags = $7, updated_at = now()
		WHERE id = $8
	`, newPrimary, firstSeen, lastSeen, summary, lane, score, pq.Array(flags), survivingID); err != nil {
		return MergeResult{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET canonical_event_id = $1, status = 'MERGED', updated_at = now() WHERE id = $2
	`, survivingID, absorbedID); err != nil {
		return MergeResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE event_states SET state = 'MERGED', entered_at = now(), reason = $1 WHERE event_id = $2
	`, reason, absorbedID); err != nil {
		return MergeResult{}, err
	}

	return MergeResult{Merged: true, MovedDocs: int(movedN), DedupedDocs: int(dedupedN)}, tx.Commit()
}

// StrongAnchorCandidates returns (event, anchor) rows for the canonicalizer
// tick (spec.md §4.10): untombstoned, non-terminal events first seen within
// the lookback window that carry a strong-anchor-kind evidence anchor on
// one of their documents. Grounded on
// original_source/backend/app/workers/canonicalize.py's query (Event join
// EventDoc join DocAnchor, filtered to STRONG_ANCHOR_TYPES and a 24h
// first_seen_at window, excluding MERGED/IGNORED/EXPIRED).
func (s *EventStore) StrongAnchorCandidates(ctx context.Context, since time.Time, kinds []string) ([]AnchorCandidate, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT events.id, events.first_seen_at, doc_anchors.kind, doc_anchors.value
		FROM events
		JOIN event_docs ON event_docs.event_id = events.id
		JOIN doc_anchors ON doc_anchors.document_id = event_docs.document_id
		WHERE events.canonical_event_id IS NULL
		  AND events.status NOT IN ('MERGED', 'IGNORED', 'EXPIRED')
		  AND events.first_seen_at >= $1
		  AND doc_anchors.kind = ANY($2)
	`, since, pq.Array(kinds))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnchorCandidate
	for rows.Next() {
		var c AnchorCandidate
		if err := rows.Scan(&c.EventID, &c.FirstSeenAt, &c.AnchorKind, &c.AnchorValue); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SplitResult reports what an editorial split moved (spec.md §4.13).
type SplitResult struct {
	NewEventID    int64
	MovedDocs     int
	RemainingDocs int
}

// SplitEvent moves the given documents off sourceEventID onto a newly
// created event, grounded on
// original_source/backend/app/split_service.py's split_event_by_docs: at
// least 2 docs on the source, the split set must be a proper non-empty
// subset, the new event inherits summary/lane (or the editorial
// overrides), and first/last-seen bounds are recomputed on both sides from
// their remaining EventDoc.linked_at timestamps. Unlike the original's
// is_primary column, primary document is tracked as Event.
// PrimaryDocumentID, so the split recomputes it for both events directly.
func (s *EventStore) SplitEvent(ctx context.Context, sourceEventID int64, docIDs []int64, newSummary, newLane string) (SplitResult, error) {
	if len(docIDs) == 0 {
		return SplitResult{}, fmt.Errorf("split requires at least one document id")
	}
	want := make(map[int64]bool, len(docIDs))
	for _, id := range docIDs {
		want[id] = true
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return SplitResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var source Event
	if err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, sourceEventID), &source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SplitResult{}, ErrNotFound
		}
		return SplitResult{}, err
	}
	if source.CanonicalEventID != nil {
		return SplitResult{}, fmt.Errorf("event %d is tombstoned into %d", sourceEventID, *source.CanonicalEventID)
	}
	if source.Status == "MERGED" {
		return SplitResult{}, fmt.Errorf("event %d is already MERGED", sourceEventID)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT document_id, link_reason, linked_at FROM event_docs
		WHERE event_id = $1 ORDER BY linked_at ASC, document_id ASC
	`, sourceEventID)
	if err != nil {
		return SplitResult{}, err
	}
	var all []EventDoc
	for rows.Next() {
		var d EventDoc
		d.EventID = sourceEventID
		if err := rows.Scan(&d.DocumentID, &d.LinkReason, &d.LinkedAt); err != nil {
			rows.Close()
			return SplitResult{}, err
		}
		all = append(all, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SplitResult{}, err
	}
	if len(all) < 2 {
		return SplitResult{}, fmt.Errorf("cannot split an event with fewer than 2 documents")
	}

	var target, remaining []EventDoc
	for _, d := range all {
		if want[d.DocumentID] {
			target = append(target, d)
		} else {
			remaining = append(remaining, d)
		}
	}
	if len(target) == 0 {
		return SplitResult{}, fmt.Errorf("none of the given document ids belong to event %d", sourceEventID)
	}
	if len(remaining) == 0 {
		return SplitResult{}, fmt.Errorf("split must leave at least one document on the source event")
	}

	summary := newSummary
	if summary == "" {
		summary = source.Summary
	}
	lane := newLane
	if lane == "" {
		lane = source.Lane
	}

	now := time.Now().UTC()
	newFirst, newLast := linkBounds(target, now)
	sourceFirst, sourceLast := linkBounds(remaining, now)

	var newEventID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO events (status, lane, title, summary, score_plantao, primary_document_id, hydration_pool, first_seen_at, last_seen_at, updated_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7,$8,$9)
		RETURNING id
	`, source.Status, lane, source.Title, summary, target[0].DocumentID, source.HydrationPool, newFirst, newLast, now).Scan(&newEventID); err != nil {
		return SplitResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_states (event_id, state, entered_at, reason) VALUES ($1,$2,$3,$4)
	`, newEventID, source.Status, now, "EDITORIAL_SPLIT_CREATED"); err != nil {
		return SplitResult{}, err
	}

	for _, d := range target {
		if _, err := tx.ExecContext(ctx, `UPDATE event_docs SET event_id = $1 WHERE event_id = $2 AND document_id = $3`, newEventID, sourceEventID, d.DocumentID); err != nil {
			return SplitResult{}, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET event_id = $1 WHERE id = $2`, newEventID, d.DocumentID); err != nil {
			return SplitResult{}, err
		}
	}

	newPrimary := source.PrimaryDocumentID
	if newPrimary == nil || want[*newPrimary] {
		newPrimary = &remaining[0].DocumentID
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET primary_document_id = $1, first_seen_at = $2, last_seen_at = $3, updated_at = $4
		WHERE id = $5
	`, newPrimary, sourceFirst, sourceLast, now, sourceEventID); err != nil {
		return SplitResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE event_states SET entered_at = $1, reason = $2 WHERE event_id = $3
	`, now, "EDITORIAL_SPLIT_SOURCE_UPDATED", sourceEventID); err != nil {
		return SplitResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return SplitResult{}, err
	}
	return SplitResult{NewEventID: newEventID, MovedDocs: len(target), RemainingDocs: len(remaining)}, nil
}

func linkBounds(docs []EventDoc, fallback time.Time) (time.Time, time.Time) {
	if len(docs) == 0 {
		return fallback, fallback
	}
	min, max := docs[0].LinkedAt, docs[0].LinkedAt
	for _, d := range docs[1:] {
		if d.LinkedAt.Before(min) {
			min = d.LinkedAt
		}
		if d.LinkedAt.After(max) {
			max = d.LinkedAt
		}
	}
	return min, max
}

func unionFlags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, f := range append(append([]string{}, a...), b...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// SaveFeedback inserts an editorial action row (spec.md §4.13).
func (s *EventStore) SaveFeedback(ctx context.Context, f FeedbackEvent) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO feedback_events (event_id, action, actor, detail, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, f.EventID, f.Action, f.Actor, f.Detail, f.CreatedAt).Scan(&id)
	return id, err
}

// LastAlertSent returns the last time an alert key fired for an event.
func (s *EventStore) LastAlertSent(ctx context.Context, eventID int64, alertKey string) (time.Time, bool, error) {
	var t time.Time
	err := s.DB.QueryRowContext(ctx, `
		SELECT last_sent_at FROM event_alert_states WHERE event_id = $1 AND alert_key = $2
	`, eventID, alertKey).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	return t, err == nil, err
}

// RecordAlertSent upserts the last-sent timestamp for an alert key on an event.
func (s *EventStore) RecordAlertSent(ctx context.Context, eventID int64, alertKey string, sentAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO event_alert_states (event_id, alert_key, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (event_id, alert_key) DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at
	`, eventID, alertKey, sentAt)
	return err
}

// RecentlyUpdatedEvents returns canonical (non-tombstone) events touched
// since a (updated_at, id) cursor, for the push stream's EVENT_UPSERT kind
// (spec.md §4.11). The tuple comparison, rather than a bare timestamp
// threshold, is what makes the cursor safe across rows sharing the same
// updated_at instant.
func (s *EventStore) RecentlyUpdatedEvents(ctx context.Context, sinceUpdatedAt time.Time, sinceID int64, limit int) ([]Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE canonical_event_id IS NULL AND (updated_at, id) > ($1, $2)
		ORDER BY updated_at, id LIMIT $3
	`, sinceUpdatedAt, sinceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := scanEvent(rows, &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentStateChanges returns EventState rows touched since a (entered_at,
// event_id) cursor, for the push stream's EVENT_STATE_CHANGED kind
// (spec.md §4.11). event_states keeps one current row per event rather
// than a full history, so event_id stands in for the missing surrogate id
// in the cursor tuple.
func (s *EventStore) RecentStateChanges(ctx context.Context, sinceEnteredAt time.Time, sinceEventID int64, limit int) ([]EventState, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT event_id, state, entered_at, expires_at, reason
		FROM event_states
		WHERE (entered_at, event_id) > ($1, $2)
		ORDER BY entered_at, event_id LIMIT $3
	`, sinceEnteredAt, sinceEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventState
	for rows.Next() {
		var st EventState
		if err := rows.Scan(&st.EventID, &st.State, &st.EnteredAt, &st.ExpiresAt, &st.Reason); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecentMergeAudits returns MergeAudit rows created since a (created_at, id)
// cursor, for the push stream's EVENT_MERGED kind (spec.md §4.11).
func (s *EventStore) RecentMergeAudits(ctx context.Context, sinceCreatedAt time.Time, sinceID int64, limit int) ([]MergeAudit, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, surviving_event_id, absorbed_event_id, reason, idempotency_key, created_at
		FROM merge_audits
		WHERE (created_at, id) > ($1, $2)
		ORDER BY created_at, id LIMIT $3
	`, sinceCreatedAt, sinceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MergeAudit
	for rows.Next() {
		var m MergeAudit
		if err := rows.Scan(&m.ID, &m.SurvivingEventID, &m.AbsorbedEventID, &m.Reason, &m.IdempotencyKey, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// EventsByOceanoScore returns canonical events whose latest OCEANO score is
// at or above minScore, for the /api/oceano-azul read endpoint (spec.md
// §6), ordered by that score descending.
func (s *EventStore) EventsByOceanoScore(ctx context.Context, kind string, minScore float64, limit int) ([]Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events e
		JOIN LATERAL (
			SELECT score FROM event_scores
			WHERE event_id = e.id AND kind = $1
			ORDER BY computed_at DESC LIMIT 1
		) latest ON true
		WHERE e.canonical_event_id IS NULL AND latest.score >= $2
		ORDER BY latest.score DESC
		LIMIT $3
	`, kind, minScore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := scanEvent(rows, &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MergeAuditsForEvent returns every merge_audits row naming eventID as
// either side of the merge, newest first, for the
// /api/events/{id}/merge-audit read endpoint (spec.md §6).
func (s *EventStore) MergeAuditsForEvent(ctx context.Context, eventID int64) ([]MergeAudit, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, surviving_event_id, absorbed_event_id, reason, idempotency_key, created_at
		FROM merge_audits
		WHERE surviving_event_id = $1 OR absorbed_event_id = $1
		ORDER BY created_at DESC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MergeAudit
	for rows.Next() {
		var m MergeAudit
		if err := rows.Scan(&m.ID, &m.SurvivingEventID, &m.AbsorbedEventID, &m.Reason, &m.IdempotencyKey, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FeedbackForEvent returns every editorial action recorded against
// eventID, newest first, for the /api/events/{id}/feedback read endpoint
// (spec.md §6).
func (s *EventStore) FeedbackForEvent(ctx context.Context, eventID int64) ([]FeedbackEvent, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, event_id, action, actor, detail, created_at
		FROM feedback_events
		WHERE event_id = $1
		ORDER BY created_at DESC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeedbackEvent
	for rows.Next() {
		var f FeedbackEvent
		if err := rows.Scan(&f.ID, &f.EventID, &f.Action, &f.Actor, &f.Detail, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
