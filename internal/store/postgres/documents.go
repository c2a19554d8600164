package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DocumentStore persists Document rows and their anchors, evidence
// features, and entity mentions in one transaction per document
// (spec.md §3, §4.7).
type DocumentStore struct {
	DB *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{DB: db}
}

// DocumentBundle is everything the organizer produces for one extracted item.
type DocumentBundle struct {
	Document Document
	Anchors  []DocAnchor
	Evidence []DocEvidenceFeature
	Entities []EntityMention
}

// SaveDocument inserts a Document and its derived rows atomically, and
// returns the assigned document id.
func (s *DocumentStore) SaveDocument(ctx context.Context, b DocumentBundle) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	d := b.Document
	err = tx.QueryRowContext(ctx, `
		INSERT INTO documents
			(source_id, snapshot_id, url, canonical_url, title, text, author, lang, published_at, modified_at, content_hash, simhash, lane, version, prior_version_id, event_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id
	`, d.SourceID, d.SnapshotID, d.URL, d.CanonicalURL, d.Title, d.Text, d.Author, d.Lang, d.PublishedAt, d.ModifiedAt, d.ContentHash, d.SimHash, d.Lane, d.Version, d.PriorVersionID, d.EventID, d.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}

	for _, a := range b.Anchors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO doc_anchors (document_id, kind, value, normalized, weight)
			VALUES ($1,$2,$3,$4,$5)
		`, id, a.Kind, a.Value, a.Normalized, a.Weight); err != nil {
			return 0, err
		}
	}

	for _, e := range b.Evidence {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO doc_evidence_features (document_id, kind, count, score)
			VALUES ($1,$2,$3,$4)
		`, id, e.Kind, e.Count, e.Score); err != nil {
			return 0, err
		}
	}

	for _, m := range b.Entities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_mentions (document_id, entity_type, entity_value, normalized)
			VALUES ($1,$2,$3,$4)
		`, id, m.EntityType, m.EntityValue, m.Normalized); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetDocument fetches a document row by id.
func (s *DocumentStore) GetDocument(ctx context.Context, id int64) (Document, error) {
	var d Document
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, source_id, snapshot_id, url, canonical_url, title, text, author, lang, published_at, modified_at, content_hash, simhash, lane, version, prior_version_id, event_id, created_at
		FROM documents WHERE id = $1
	`, id).Scan(&d.ID, &d.SourceID, &d.SnapshotID, &d.URL, &d.CanonicalURL, &d.Title, &d.Text, &d.Author, &d.Lang, &d.PublishedAt, &d.ModifiedAt, &d.ContentHash, &d.SimHash, &d.Lane, &d.Version, &d.PriorVersionID, &d.EventID, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// FindByURL looks up an existing document for a source+url pair, used to
// detect same-URL revisions (spec.md §4.7 versioning).
func (s *DocumentStore) FindByURL(ctx context.Context, sourceID, url string) (Document, error) {
	var d Document
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, source_id, snapshot_id, url, canonical_url, title, text, author, lang, published_at, modified_at, content_hash, simhash, lane, version, prior_version_id, event_id, created_at
		FROM documents WHERE source_id = $1 AND url = $2
		ORDER BY version DESC LIMIT 1
	`, sourceID, url).Scan(&d.ID, &d.SourceID, &d.SnapshotID, &d.URL, &d.CanonicalURL, &d.Title, &d.Text, &d.Author, &d.Lang, &d.PublishedAt, &d.ModifiedAt, &d.ContentHash, &d.SimHash, &d.Lane, &d.Version, &d.PriorVersionID, &d.EventID, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// AnchorsByNormalized finds candidate documents sharing a normalized anchor
// value of the given kind, restricted to EventDocs seen within the linkage
// window, for strong-anchor linkage (spec.md §4.7 step 2a: "seen in an
// EventDoc whose seen_at is within the last 12 h").
func (s *DocumentStore) AnchorsByNormalized(ctx context.Context, kind, normalized string, since time.Time, excludeDocumentID int64) ([]DocAnchor, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT a.id, a.document_id, a.kind, a.value, a.normalized, a.weight
		FROM doc_anchors a
		JOIN event_docs ed ON ed.document_id = a.document_id
		WHERE a.kind = $1 AND a.normalized = $2 AND a.document_id != $3 AND ed.linked_at >= $4
	`, kind, normalized, excludeDocumentID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocAnchor
	for rows.Next() {
		var a DocAnchor
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Kind, &a.Value, &a.Normalized, &a.Weight); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SimHashCandidates returns documents with a non-null simhash created since
// a cutoff, for proximity search within the lookback window (spec.md §4.6,
// §4.7 step 2c: "documents created in the last 12 h").
func (s *DocumentStore) SimHashCandidates(ctx context.Context, since time.Time, excludeDocumentID int64) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, source_id, snapshot_id, url, canonical_url, title, text, author, lang, published_at, modified_at, content_hash, simhash, lane, version, prior_version_id, event_id, created_at
		FROM documents WHERE simhash IS NOT NULL AND created_at >= $1 AND id != $2
	`, since, excludeDocumentID)
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

// SetDocumentEvent links a document to an event after organizer linkage
// decides its placement.
func (s *DocumentStore) SetDocumentEvent(ctx context.Context, documentID, eventID int64) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE documents SET event_id = $1 WHERE id = $2`, eventID, documentID)
	return err
}

// AnchorsForDocument returns every anchor found on a document, for the CMS
// draft endpoint's anchors[] aggregate (spec.md §6).
func (s *DocumentStore) AnchorsForDocument(ctx context.Context, documentID int64) ([]DocAnchor, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, document_id, kind, value, normalized, weight
		FROM doc_anchors WHERE document_id = $1
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocAnchor
	for rows.Next() {
		var a DocAnchor
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Kind, &a.Value, &a.Normalized, &a.Weight); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EvidenceFeaturesForDocument returns a document's stored evidence
// features, for the draft endpoint's evidence_score aggregate.
func (s *DocumentStore) EvidenceFeaturesForDocument(ctx context.Context, documentID int64) ([]DocEvidenceFeature, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, document_id, kind, count, score
		FROM doc_evidence_features WHERE document_id = $1
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocEvidenceFeature
	for rows.Next() {
		var f DocEvidenceFeature
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Kind, &f.Count, &f.Score); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// EntityMentionsForDocument returns a document's extracted entity mentions,
// for the draft endpoint's field_confidence aggregate.
func (s *DocumentStore) EntityMentionsForDocument(ctx context.Context, documentID int64) ([]EntityMention, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, document_id, entity_type, entity_value, normalized
		FROM entity_mentions WHERE document_id = $1
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntityMention
	for rows.Next() {
		var m EntityMention
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.EntityType, &m.EntityValue, &m.Normalized); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
