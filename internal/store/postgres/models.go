// Package postgres implements the relational entities and repository
// methods of spec.md §3 against PostgreSQL, in the style of the teacher's
// raw database/sql + lib/pq repository layer (no ORM, no query builder).
package postgres

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("postgres: not found")

// Source is the top-level catalog entry (spec.md §3).
type Source struct {
	ID         string
	Name       string
	Host       string
	Tier       int
	Official   bool
	MediaGroup string
	Lane       string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SourceProfileRow stores the JSONB-encoded source.Profile alongside the
// scheduler's due-date bookkeeping.
type SourceProfileRow struct {
	SourceID  string
	Tier      int
	Official  bool
	Strategy  string
	Pool      string
	Profile   json.RawMessage
	NextDueAt time.Time
	UpdatedAt time.Time
}

// Snapshot is a captured raw fetch result (spec.md §3).
type Snapshot struct {
	ID            int64
	SourceID      string
	URL           string
	FetchedAt     time.Time
	StatusCode    int
	ContentType   string
	ContentHash   string
	SnapshotHash  string
	Body          []byte
	ETag          string
	LastModified  string
	SizeBytes     int64
}

// FetchOutcome is the terminal classification of a FetchAttempt (spec.md §4.3/§7).
type FetchOutcome string

const (
	OutcomeSuccess    FetchOutcome = "SUCCESS"
	OutcomeNotModified FetchOutcome = "NOT_MODIFIED"
	OutcomeFailure    FetchOutcome = "FAILURE"
	OutcomeBlocked    FetchOutcome = "BLOCKED"
)

// FetchAttempt records one attempt to run a source's fetch strategy
// (spec.md §3, §7 error taxonomy feeds ErrorClass).
type FetchAttempt struct {
	ID            int64
	SourceID      string
	SnapshotID    *int64
	Strategy      string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Outcome       FetchOutcome
	ErrorClass    string
	AttemptNumber int
	LatencyMS     int
}

// Document is an extracted item, one per Snapshot per logical article
// revision (spec.md §3).
type Document struct {
	ID              int64
	SourceID        string
	SnapshotID      *int64
	URL             string
	CanonicalURL    string
	Title           string
	Text            string
	Author          string
	Lang            string
	PublishedAt     *time.Time
	ModifiedAt      *time.Time
	ContentHash     string
	SimHash         *uint64
	Lane            string
	Version         int
	PriorVersionID  *int64
	EventID         *int64
	CreatedAt       time.Time
}

// DocAnchor is a single regex-extracted evidence anchor (spec.md §3, §4.5).
type DocAnchor struct {
	ID         int64
	DocumentID int64
	Kind       string
	Value      string
	Normalized string
	Weight     float64
}

// DocEvidenceFeature aggregates anchor counts into a per-kind score
// contribution (spec.md §3, §4.5).
type DocEvidenceFeature struct {
	ID         int64
	DocumentID int64
	Kind       string
	Count      int
	Score      float64
}

// EntityMention is a named entity surfaced during extraction (spec.md §3).
type EntityMention struct {
	ID          int64
	DocumentID  int64
	EntityType  string
	EntityValue string
	Normalized  string
}

// Event is the organizer's unit of editorial tracking (spec.md §3). A
// non-nil CanonicalEventID makes this row a tombstone: Status is always
// MERGED and it is excluded from feed reads at the query boundary.
type Event struct {
	ID                int64
	CanonicalEventID  *int64
	Status            string
	Lane              string
	Title             string
	Summary           string
	Flags             []string
	ScorePlantao      float64
	PrimaryDocumentID *int64
	HydrationPool     string
	FirstSeenAt       time.Time
	LastSeenAt        time.Time
	UpdatedAt         time.Time
}

// EventDoc links a Document into an Event with the reason it was linked
// (spec.md §3, §4.7).
type EventDoc struct {
	EventID    int64
	DocumentID int64
	LinkReason string
	LinkedAt   time.Time
}

// AnchorCandidate is one (event, strong anchor) row surfaced for the
// canonicalization pass (spec.md §4.10): an event not yet tombstoned,
// carrying a strong-anchor-type evidence anchor on one of its documents.
type AnchorCandidate struct {
	EventID     int64
	FirstSeenAt time.Time
	AnchorKind  string
	AnchorValue string
}

// EventState is the current state-machine position of an Event (spec.md §3, §4.9).
type EventState struct {
	EventID   int64
	State     string
	EnteredAt time.Time
	ExpiresAt *time.Time
	Reason    string
}

// EventScore is one computed scoring pass (plantão or oceano azul) for an
// Event, with its stable reason codes (spec.md §3, §4.8).
type EventScore struct {
	ID         int64
	EventID    int64
	Kind       string
	Score      float64
	Reasons    []string
	ComputedAt time.Time
}

// MergeAudit records a merge operation for idempotence and traceability
// (spec.md §3, §4.10).
type MergeAudit struct {
	ID                int64
	SurvivingEventID  int64
	AbsorbedEventID   int64
	Reason            string
	IdempotencyKey    string
	CreatedAt         time.Time
}

// FeedbackEvent is an editorial action applied to an Event (spec.md §3, §4.13).
type FeedbackEvent struct {
	ID        int64
	EventID   int64
	Action    string
	Actor     string
	Detail    json.RawMessage
	CreatedAt time.Time
}

// EventAlertState tracks the last time an alert key fired for an Event, for
// cooldown/dedupe enforcement (spec.md §3, §4.11).
type EventAlertState struct {
	EventID    int64
	AlertKey   string
	LastSentAt time.Time
}
