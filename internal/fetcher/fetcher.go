// Package fetcher implements the per-task fetch contract of spec.md §4.3:
// URL selection, an SSRF guard, preflight rate/concurrency/circuit checks
// backed by infrastructure/cache and infrastructure/resilience, strategy
// dispatch, size enforcement, and FetchAttempt/Snapshot persistence. It
// follows internal/organizer's narrow repository-interface pattern so the
// whole contract is unit-testable against fakes.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/cache"
	svcerrors "github.com/pautaradar/newsradar/infrastructure/errors"
	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/infrastructure/resilience"
	"github.com/pautaradar/newsradar/internal/fetcher/strategy"
	"github.com/pautaradar/newsradar/internal/source"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// Task is one scheduler-emitted fetch unit: a source and its validated
// profile.
type Task struct {
	SourceID   string
	Tier       int
	IsOfficial bool
	Profile    source.Profile
}

// SnapshotStore is the narrow slice of postgres.SnapshotStore the fetcher
// needs, matching its real method set exactly.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap postgres.Snapshot) (int64, error)
	LatestSnapshot(ctx context.Context, sourceID string) (postgres.Snapshot, error)
	SaveFetchAttempt(ctx context.Context, fa postgres.FetchAttempt) (int64, error)
}

// ExtractTask is the payload the fetcher hands to the extractor's queue
// (spec.md §4.3 step 7).
type ExtractTask struct {
	SourceID        string
	Tier            int
	IsOfficial      bool
	Pool            string
	Profile         source.Profile
	Body            []byte
	ContentHash     string
	PayloadKind     string
	SnapshotID      int64
	StatusCode      int
	ResponseHeaders map[string]string
}

// ExtractEnqueuer hands an ExtractTask to the durable queue. A nil
// ExtractEnqueuer is valid: the fetcher is buildable and testable ahead of
// internal/queue, the same accommodation internal/organizer makes for its
// ScoreEnqueuer.
type ExtractEnqueuer interface {
	EnqueueExtract(ctx context.Context, task ExtractTask) error
}

// Result summarizes one Fetch call's outcome for the caller (worker loop,
// tests).
type Result struct {
	Outcome      postgres.FetchOutcome
	ErrorClass   string
	SnapshotID   int64
	FetchAttempt int64
}

// Fetcher runs the spec.md §4.3 contract for a single task at a time; the
// worker pool achieves concurrency by running multiple Fetcher.Fetch calls
// concurrently, not by this type being internally concurrent.
type Fetcher struct {
	Snapshots SnapshotStore
	Extract   ExtractEnqueuer
	Cache     cache.Store
	Metrics   *metrics.Metrics
	Log       *logging.Logger

	Strategies map[source.Strategy]strategy.Executor
	Resolver   *net.Resolver
	Retry      resilience.RetryConfig

	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker
}

func New(snapshots SnapshotStore, extract ExtractEnqueuer, store cache.Store, m *metrics.Metrics, log *logging.Logger) *Fetcher {
	httpExec := strategy.NewHTTPExecutor(nil, "")
	return &Fetcher{
		Snapshots: snapshots,
		Extract:   extract,
		Cache:     store,
		Metrics:   m,
		Log:       log,
		Strategies: map[source.Strategy]strategy.Executor{
			source.StrategyFeed:        httpExec,
			source.StrategyHTML:        httpExec,
			source.StrategyAPI:         httpExec,
			source.StrategySPAAPI:      httpExec,
			source.StrategyPDF:         strategy.NewPDFExecutor(nil, ""),
			source.StrategySPAHeadless: strategy.NewHeadlessExecutor(strategy.NewRodRenderer(true, "", 0)),
		},
		Retry:    resilience.DefaultRetryConfig(),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

func (f *Fetcher) breakerFor(sourceID string) *resilience.CircuitBreaker {
	f.breakersMu.Lock()
	defer f.breakersMu.Unlock()
	cb, ok := f.breakers[sourceID]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		f.breakers[sourceID] = cb
	}
	return cb
}

// Fetch runs the full spec.md §4.3 contract once for task, attempting up to
// Retry.MaxAttempts tries with Retry.Backoff between them.
func (f *Fetcher) Fetch(ctx context.Context, task Task, now time.Time) (Result, error) {
	endpoint, ok := selectEndpoint(task.Profile)
	if !ok {
		if f.Log != nil {
			f.Log.WithField("source_id", task.SourceID).Debug("fetcher: no endpoint configured for strategy, skipping")
		}
		return Result{}, nil
	}

	var result Result
	var lastErr error
	err := resilience.Retry(ctx, f.Retry, func(attempt int) error {
		r, runErr := f.attempt(ctx, task, endpoint, attempt, now)
		result = r
		lastErr = runErr
		return runErr
	})
	if err != nil {
		return result, lastErr
	}
	return result, nil
}

// attempt runs one try: SSRF guard, preflight guardrails, execution,
// persistence, and circuit-breaker update.
func (f *Fetcher) attempt(ctx context.Context, task Task, endpoint string, attemptNumber int, now time.Time) (Result, error) {
	if err := ssrfGuard(ctx, endpoint, f.Resolver); err != nil {
		// spec.md §4.3 step 2 / scenario 5: SSRF-blocked endpoints write no
		// FetchAttempt, no Snapshot, and enqueue no extract task.
		if f.Log != nil {
			f.Log.WithField("source_id", task.SourceID).WithField("url", endpoint).Warn("fetcher: SSRF guard blocked endpoint")
		}
		return Result{Outcome: postgres.OutcomeBlocked, ErrorClass: string(svcerrors.CodeSSRFBlocked)}, nil
	}

	domain := hostOf(endpoint)
	started := now

	if cb := f.breakerFor(task.SourceID); !cb.Allow(now) {
		return f.recordBlocked(ctx, task, endpoint, attemptNumber, started, svcerrors.CodeCircuitOpen)
	}

	if f.Cache != nil {
		bucket := now.Truncate(time.Minute).Unix()
		rateKey := fmt.Sprintf("fetch:rate:%s:%d", task.SourceID, bucket)
		if count := f.Cache.Incr(ctx, rateKey, time.Minute); task.Profile.Limits.RatePerMin > 0 && count > int64(task.Profile.Limits.RatePerMin) {
			return f.recordBlocked(ctx, task, endpoint, attemptNumber, started, svcerrors.CodeRateLimited)
		}

		domainKey := "fetch:domain:" + domain
		count := f.Cache.Incr(ctx, domainKey, time.Duration(task.Profile.Limits.TimeoutS+5)*time.Second)
		if task.Profile.Limits.DomainConcurrency > 0 && count > int64(task.Profile.Limits.DomainConcurrency) {
			f.Cache.Decr(ctx, domainKey)
			return f.recordBlocked(ctx, task, endpoint, attemptNumber, started, svcerrors.CodeDomainConcurrencyLimited)
		}
		defer f.Cache.Decr(ctx, domainKey)
	}

	req := strategy.Request{
		URL:      endpoint,
		Timeout:  time.Duration(task.Profile.Limits.TimeoutS) * time.Second,
		MaxBytes: task.Profile.Limits.MaxBytes,
	}
	if spaReq := task.Profile.Metadata.SPAAPIRequest; spaReq != nil {
		req.Method = spaReq.Method
		req.Body = spaReq.Body
		req.Headers = spaReq.Headers
	}
	if capture := task.Profile.Metadata.HeadlessCapture; capture != nil {
		req.HeadlessURLContains = capture.URLContains
		req.HeadlessMaxCount = capture.MaxCount
		req.HeadlessMaxBytes = capture.MaxBytes
	}
	if len(req.Headers) == 0 {
		req.Headers = task.Profile.Headers
	}

	if prior, err := f.Snapshots.LatestSnapshot(ctx, task.SourceID); err == nil {
		if prior.ETag != "" {
			req.IfNoneMatch = prior.ETag
		}
		if prior.LastModified != "" {
			req.IfModifiedSince = prior.LastModified
		}
	}

	exec, ok := f.Strategies[task.Profile.Strategy]
	if !ok {
		return f.recordFailure(ctx, task, endpoint, attemptNumber, started, now, svcerrors.Code("UnknownStrategy"), 0, errUnknownStrategy)
	}

	wallStart := time.Now()
	resp, execErr := exec.Execute(ctx, req)
	latency := int(time.Since(wallStart).Milliseconds())

	if execErr != nil {
		class := classifyExecError(execErr)
		return f.recordFailure(ctx, task, endpoint, attemptNumber, started, now, class, latency, execErr)
	}

	cb := f.breakerFor(task.SourceID)
	cb.RecordSuccess(now)

	if resp.NotModified {
		_, err := f.Snapshots.SaveFetchAttempt(ctx, postgres.FetchAttempt{
			SourceID: task.SourceID, Strategy: string(task.Profile.Strategy),
			StartedAt: started, FinishedAt: &now, Outcome: postgres.OutcomeNotModified,
			AttemptNumber: attemptNumber, LatencyMS: latency,
		})
		f.observe(task, postgres.OutcomeNotModified, "", latency)
		return Result{Outcome: postgres.OutcomeNotModified}, err
	}

	contentHash := sha256Hex(resp.Body)
	snapshotHash := sha256Hex([]byte(endpoint + "|" + contentHash))

	prior, priorErr := f.Snapshots.LatestSnapshot(ctx, task.SourceID)
	changed := priorErr != nil || prior.ContentHash != contentHash

	var snapshotID int64
	if changed {
		id, err := f.Snapshots.SaveSnapshot(ctx, postgres.Snapshot{
			SourceID: task.SourceID, URL: endpoint, FetchedAt: now,
			StatusCode: resp.StatusCode, ContentType: resp.ContentType,
			ContentHash: contentHash, SnapshotHash: snapshotHash, Body: resp.Body,
			ETag: resp.ETag, LastModified: resp.LastModified, SizeBytes: int64(len(resp.Body)),
		})
		if err != nil {
			return Result{}, err
		}
		snapshotID = id
		if f.Metrics != nil {
			f.Metrics.SnapshotsTotal.WithLabelValues(task.SourceID).Inc()
		}
	}

	var snapIDPtr *int64
	if snapshotID != 0 {
		snapIDPtr = &snapshotID
	}
	attemptID, err := f.Snapshots.SaveFetchAttempt(ctx, postgres.FetchAttempt{
		SourceID: task.SourceID, SnapshotID: snapIDPtr, Strategy: string(task.Profile.Strategy),
		StartedAt: started, FinishedAt: &now, Outcome: postgres.OutcomeSuccess,
		AttemptNumber: attemptNumber, LatencyMS: latency,
	})
	if err != nil {
		return Result{}, err
	}
	f.observe(task, postgres.OutcomeSuccess, "", latency)

	if changed && f.Extract != nil {
		pool := string(task.Profile.Pool)
		queue := "extract_fast"
		if pool == string(source.PoolDeepExtract) {
			queue = "extract_deep"
		}
		headers := map[string]string{
			"content_type": resp.ContentType,
			"etag":         resp.ETag,
			"last_modified": resp.LastModified,
		}
		if err := f.Extract.EnqueueExtract(ctx, ExtractTask{
			SourceID: task.SourceID, Tier: task.Tier, IsOfficial: task.IsOfficial,
			Pool: queue, Profile: task.Profile,
			Body: resp.Body, ContentHash: contentHash, PayloadKind: string(resp.PayloadKind),
			SnapshotID: snapshotID, StatusCode: resp.StatusCode, ResponseHeaders: headers,
		}); err != nil && f.Log != nil {
			f.Log.WithField("source_id", task.SourceID).WithError(err).Warn("fetcher: failed to enqueue extract task")
		}
	}

	return Result{Outcome: postgres.OutcomeSuccess, SnapshotID: snapshotID, FetchAttempt: attemptID}, nil
}

// recordBlocked persists a guardrail-blocked attempt. Guardrail blocks are
// terminal for the tick, never retried, so this always returns a nil error
// regardless of persistence outcome (logged separately).
func (f *Fetcher) recordBlocked(ctx context.Context, task Task, endpoint string, attemptNumber int, started time.Time, code svcerrors.Code) (Result, error) {
	now := started
	id, err := f.Snapshots.SaveFetchAttempt(ctx, postgres.FetchAttempt{
		SourceID: task.SourceID, Strategy: string(task.Profile.Strategy),
		StartedAt: started, FinishedAt: &now, Outcome: postgres.OutcomeBlocked,
		ErrorClass: string(code), AttemptNumber: attemptNumber,
	})
	if err != nil && f.Log != nil {
		f.Log.WithField("source_id", task.SourceID).WithError(err).Warn("fetcher: failed to persist blocked FetchAttempt")
	}
	f.observe(task, postgres.OutcomeBlocked, string(code), 0)
	return Result{Outcome: postgres.OutcomeBlocked, ErrorClass: string(code), FetchAttempt: id}, nil
}

// recordFailure persists a failed attempt and updates the circuit breaker.
// It returns origErr (not the persistence error) so the caller's retry loop
// re-attempts on transport failures; a persistence error is logged but does
// not by itself trigger a retry storm against an already-failed fetch.
func (f *Fetcher) recordFailure(ctx context.Context, task Task, endpoint string, attemptNumber int, started, now time.Time, code svcerrors.Code, latency int, origErr error) (Result, error) {
	opened := f.breakerFor(task.SourceID).RecordFailure(now)
	if opened && f.Metrics != nil {
		f.Metrics.CircuitOpenTotal.WithLabelValues(task.SourceID).Inc()
	}
	id, err := f.Snapshots.SaveFetchAttempt(ctx, postgres.FetchAttempt{
		SourceID: task.SourceID, Strategy: string(task.Profile.Strategy),
		StartedAt: started, FinishedAt: &now, Outcome: postgres.OutcomeFailure,
		ErrorClass: string(code), AttemptNumber: attemptNumber, LatencyMS: latency,
	})
	if err != nil && f.Log != nil {
		f.Log.WithField("source_id", task.SourceID).WithError(err).Warn("fetcher: failed to persist FetchAttempt")
	}
	f.observe(task, postgres.OutcomeFailure, string(code), latency)
	return Result{Outcome: postgres.OutcomeFailure, ErrorClass: string(code), FetchAttempt: id}, origErr
}

var errUnknownStrategy = fmt.Errorf("fetcher: no executor registered for strategy")

func (f *Fetcher) observe(task Task, outcome postgres.FetchOutcome, errorClass string, latencyMS int) {
	if f.Metrics == nil {
		return
	}
	pool := string(task.Profile.Pool)
	f.Metrics.FetchAttemptsTotal.WithLabelValues(task.SourceID, pool, errorClass).Inc()
	if latencyMS > 0 {
		f.Metrics.FetchLatency.WithLabelValues(pool).Observe(float64(latencyMS) / 1000.0)
	}
}

// selectEndpoint picks the first populated endpoint key in the strategy's
// priority order (spec.md §4.3 step 1).
func selectEndpoint(p source.Profile) (string, bool) {
	for _, key := range source.EndpointKeyPriority(p.Strategy) {
		if v, ok := p.Endpoints[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func classifyExecError(err error) svcerrors.Code {
	if err == nil {
		return ""
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return svcerrors.CodeTimeout
	}
	switch err.Error() {
	case "response exceeds configured max_bytes":
		return svcerrors.CodeMaxBytesExceeded
	}
	if _, ok := err.(*net.DNSError); ok {
		return svcerrors.CodeDNS
	}
	return svcerrors.CodeConnectError
}

