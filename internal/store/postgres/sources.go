package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SourceStore implements the Source and SourceProfile repository methods
// of spec.md §3/§4.1.
type SourceStore struct {
	DB *sql.DB
}

func NewSourceStore(db *sql.DB) *SourceStore {
	return &SourceStore{DB: db}
}

// UpsertSource inserts or updates a catalog row.
func (s *SourceStore) UpsertSource(ctx context.Context, src Source) error {
	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sources (id, name, host, tier, official, media_group, lane, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			host = EXCLUDED.host,
			tier = EXCLUDED.tier,
			official = EXCLUDED.official,
			media_group = EXCLUDED.media_group,
			lane = EXCLUDED.lane,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`, src.ID, src.Name, src.Host, src.Tier, src.Official, src.MediaGroup, src.Lane, src.Active, now, now)
	return err
}

// GetSource fetches a catalog row by id.
func (s *SourceStore) GetSource(ctx context.Context, id string) (Source, error) {
	var src Source
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, host, tier, official, media_group, lane, active, created_at, updated_at
		FROM sources WHERE id = $1
	`, id).Scan(&src.ID, &src.Name, &src.Host, &src.Tier, &src.Official, &src.MediaGroup, &src.Lane, &src.Active, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, ErrNotFound
	}
	return src, err
}

// ListActiveSources returns every active catalog row, for bootstrap and the
// editorial catalog surface.
func (s *SourceStore) ListActiveSources(ctx context.Context) ([]Source, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, host, tier, official, media_group, lane, active, created_at, updated_at
		FROM sources WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Host, &src.Tier, &src.Official, &src.MediaGroup, &src.Lane, &src.Active, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpsertProfile stores a source's validated strategy/pool/JSON profile.
func (s *SourceStore) UpsertProfile(ctx context.Context, row SourceProfileRow) error {
	now := time.Now().UTC()
	if row.NextDueAt.IsZero() {
		row.NextDueAt = now
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO source_profiles (source_id, strategy, pool, profile, next_due_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (source_id) DO UPDATE SET
			strategy = EXCLUDED.strategy,
			pool = EXCLUDED.pool,
			profile = EXCLUDED.profile,
			updated_at = EXCLUDED.updated_at
	`, row.SourceID, row.Strategy, row.Pool, row.Profile, row.NextDueAt, now)
	return err
}

// DueProfiles returns profiles whose next_due_at has passed, for the
// scheduler tick (spec.md §4.2).
func (s *SourceStore) DueProfiles(ctx context.Context, now time.Time, limit int) ([]SourceProfileRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT source_profiles.source_id, sources.tier, sources.official,
		       source_profiles.strategy, source_profiles.pool, source_profiles.profile,
		       source_profiles.next_due_at, source_profiles.updated_at
		FROM source_profiles
		JOIN sources ON sources.id = source_profiles.source_id
		WHERE sources.active AND next_due_at <= $1
		ORDER BY next_due_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceProfileRow
	for rows.Next() {
		var p SourceProfileRow
		if err := rows.Scan(&p.SourceID, &p.Tier, &p.Official, &p.Strategy, &p.Pool, &p.Profile, &p.NextDueAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkScheduled advances a profile's next_due_at after the scheduler emits
// a fetch task for it.
func (s *SourceStore) MarkScheduled(ctx context.Context, sourceID string, nextDueAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE source_profiles SET next_due_at = $1, updated_at = now() WHERE source_id = $2
	`, nextDueAt, sourceID)
	return err
}
