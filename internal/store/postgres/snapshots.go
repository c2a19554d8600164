package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// SnapshotStore persists Snapshot and FetchAttempt rows (spec.md §3, §4.3).
type SnapshotStore struct {
	DB *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{DB: db}
}

// SaveSnapshot inserts a captured fetch body and returns its id.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap Snapshot) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO snapshots (source_id, url, fetched_at, status_code, content_type, content_hash, snapshot_hash, body_bytes, etag, last_modified, size_bytes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, snap.SourceID, snap.URL, snap.FetchedAt, snap.StatusCode, snap.ContentType, snap.ContentHash, snap.SnapshotHash, snap.Body, snap.ETag, snap.LastModified, snap.SizeBytes).Scan(&id)
	return id, err
}

// LatestSnapshot returns the most recent snapshot for a source, used for
// conditional-request validators (spec.md §4.3 step 2).
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, sourceID string) (Snapshot, error) {
	var snap Snapshot
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, source_id, url, fetched_at, status_code, content_type, content_hash, snapshot_hash, body_bytes, etag, last_modified, size_bytes
		FROM snapshots WHERE source_id = $1 ORDER BY fetched_at DESC LIMIT 1
	`, sourceID).Scan(&snap.ID, &snap.SourceID, &snap.URL, &snap.FetchedAt, &snap.StatusCode, &snap.ContentType, &snap.ContentHash, &snap.SnapshotHash, &snap.Body, &snap.ETag, &snap.LastModified, &snap.SizeBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	return snap, err
}

// SaveFetchAttempt inserts a FetchAttempt record and returns its id.
func (s *SnapshotStore) SaveFetchAttempt(ctx context.Context, fa FetchAttempt) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO fetch_attempts (source_id, snapshot_id, strategy, started_at, finished_at, outcome, error_class, attempt_number, latency_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, fa.SourceID, fa.SnapshotID, fa.Strategy, fa.StartedAt, fa.FinishedAt, fa.Outcome, fa.ErrorClass, fa.AttemptNumber, fa.LatencyMS).Scan(&id)
	return id, err
}

// RecentFetchAttempts returns the last n attempts for a source, newest
// first.
func (s *SnapshotStore) RecentFetchAttempts(ctx context.Context, sourceID string, n int) ([]FetchAttempt, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, source_id, snapshot_id, strategy, started_at, finished_at, outcome, error_class, attempt_number, latency_ms
		FROM fetch_attempts WHERE source_id = $1 ORDER BY started_at DESC LIMIT $2
	`, sourceID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FetchAttempt
	for rows.Next() {
		var fa FetchAttempt
		if err := rows.Scan(&fa.ID, &fa.SourceID, &fa.SnapshotID, &fa.Strategy, &fa.StartedAt, &fa.FinishedAt, &fa.Outcome, &fa.ErrorClass, &fa.AttemptNumber, &fa.LatencyMS); err != nil {
			return nil, err
		}
		out = append(out, fa)
	}
	return out, rows.Err()
}
