package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/cache"
	"github.com/pautaradar/newsradar/infrastructure/resilience"
	"github.com/pautaradar/newsradar/internal/fetcher/strategy"
	"github.com/pautaradar/newsradar/internal/source"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

type fakeSnapshots struct {
	attempts []postgres.FetchAttempt
	snaps    []postgres.Snapshot
	latest   postgres.Snapshot
	hasLatest bool
}

func (f *fakeSnapshots) SaveSnapshot(ctx context.Context, snap postgres.Snapshot) (int64, error) {
	snap.ID = int64(len(f.snaps) + 1)
	f.snaps = append(f.snaps, snap)
	f.latest = snap
	f.hasLatest = true
	return snap.ID, nil
}

func (f *fakeSnapshots) LatestSnapshot(ctx context.Context, sourceID string) (postgres.Snapshot, error) {
	if !f.hasLatest {
		return postgres.Snapshot{}, postgres.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeSnapshots) SaveFetchAttempt(ctx context.Context, fa postgres.FetchAttempt) (int64, error) {
	fa.ID = int64(len(f.attempts) + 1)
	f.attempts = append(f.attempts, fa)
	return fa.ID, nil
}

type fakeExtract struct {
	tasks []ExtractTask
}

func (f *fakeExtract) EnqueueExtract(ctx context.Context, task ExtractTask) error {
	f.tasks = append(f.tasks, task)
	return nil
}

func testProfile(strategyName source.Strategy, endpoint string) source.Profile {
	return source.Profile{
		Strategy:  strategyName,
		Pool:      source.PoolFast,
		Endpoints: map[string]string{"feed": endpoint, "api": endpoint, "latest": endpoint},
		Limits:    source.Limits{RatePerMin: 60, DomainConcurrency: 4, TimeoutS: 5, MaxBytes: 1 << 20},
	}
}

func noRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 1, Backoff: time.Millisecond}
}

// publicEndpoint is a documentation-range (TEST-NET-3) literal address that
// passes the SSRF guard without a DNS lookup. The guard blocks the loopback
// address an httptest server listens on, so routeToServer gives the FEED
// executor a transport that delivers every request to that server instead.
const publicEndpoint = "http://203.0.113.10/feed"

func routeToServer(f *Fetcher, server *httptest.Server) {
	client := &http.Client{Transport: rewriteHostTransport{target: server.URL}}
	f.Strategies[source.StrategyFeed] = strategy.NewHTTPExecutor(client, "")
}

// rewriteHostTransport sends every request to target's scheme and host,
// keeping the request's path and headers.
type rewriteHostTransport struct {
	target string
}

func (t rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	u, err := url.Parse(t.target)
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = u.Scheme
	out.URL.Host = u.Host
	out.Host = u.Host
	return http.DefaultTransport.RoundTrip(out)
}

// Grounded on spec.md §8 scenario 5: an SSRF-blocked endpoint writes no
// FetchAttempt, no Snapshot, and enqueues no extract task.
func TestFetch_SSRFGuardBlocksLoopback(t *testing.T) {
	snaps := &fakeSnapshots{}
	extract := &fakeExtract{}
	f := New(snaps, extract, nil, nil, nil)
	f.Retry = noRetry()

	_, err := f.Fetch(context.Background(), Task{
		SourceID: "src1",
		Profile:  testProfile(source.StrategyFeed, "http://127.0.0.1:8080/x"),
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps.attempts) != 0 {
		t.Fatalf("expected no FetchAttempt rows, got %d", len(snaps.attempts))
	}
	if len(snaps.snaps) != 0 {
		t.Fatalf("expected no Snapshot rows, got %d", len(snaps.snaps))
	}
	if len(extract.tasks) != 0 {
		t.Fatalf("expected no extract task enqueued")
	}
}

// Grounded on spec.md §8 scenario 4: rate_per_min=2, the third tick in the
// same minute is blocked with RateLimited and status_code 0, no Snapshot.
func TestFetch_RateLimitBlocksThirdRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	snaps := &fakeSnapshots{}
	extract := &fakeExtract{}
	store := cacheStoreAdapter{cache.NewMemoryStore()}
	f := New(snaps, extract, store, nil, nil)
	f.Retry = noRetry()
	routeToServer(f, server)

	profile := testProfile(source.StrategyFeed, publicEndpoint)
	profile.Limits.RatePerMin = 2

	now := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), Task{SourceID: "src1", Profile: profile}, now); err != nil {
			t.Fatalf("unexpected error on attempt %d: %v", i+1, err)
		}
	}
	if _, err := f.Fetch(context.Background(), Task{SourceID: "src1", Profile: profile}, now); err != nil {
		t.Fatalf("unexpected error on third attempt: %v", err)
	}

	if len(snaps.attempts) != 3 {
		t.Fatalf("expected 3 FetchAttempt rows, got %d", len(snaps.attempts))
	}
	third := snaps.attempts[2]
	if third.ErrorClass != "RateLimited" {
		t.Fatalf("expected third attempt RateLimited, got %q", third.ErrorClass)
	}
	if len(snaps.snaps) != 1 {
		t.Fatalf("expected exactly 1 snapshot (from the first two identical fetches), got %d", len(snaps.snaps))
	}
}

func TestFetch_SuccessPersistsSnapshotAndEnqueuesExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("CGU abre investigacao"))
	}))
	defer server.Close()

	snaps := &fakeSnapshots{}
	extract := &fakeExtract{}
	f := New(snaps, extract, nil, nil, nil)
	f.Retry = noRetry()
	routeToServer(f, server)

	result, err := f.Fetch(context.Background(), Task{
		SourceID: "src1",
		Profile:  testProfile(source.StrategyFeed, publicEndpoint),
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != postgres.OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %s", result.Outcome)
	}
	if len(snaps.snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps.snaps))
	}
	if len(extract.tasks) != 1 {
		t.Fatalf("expected 1 extract task enqueued, got %d", len(extract.tasks))
	}
	if extract.tasks[0].Pool != "extract_fast" {
		t.Fatalf("expected FAST pool routed to extract_fast, got %q", extract.tasks[0].Pool)
	}
}

func TestFetch_UnchangedBodyOnSecondFetchSkipsSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("same body always"))
	}))
	defer server.Close()

	snaps := &fakeSnapshots{}
	extract := &fakeExtract{}
	f := New(snaps, extract, nil, nil, nil)
	f.Retry = noRetry()
	routeToServer(f, server)

	profile := testProfile(source.StrategyFeed, publicEndpoint)
	ctx := context.Background()
	now := time.Now()
	if _, err := f.Fetch(ctx, Task{SourceID: "src1", Profile: profile}, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Fetch(ctx, Task{SourceID: "src1", Profile: profile}, now.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snaps.snaps) != 1 {
		t.Fatalf("expected only 1 snapshot across two identical fetches, got %d", len(snaps.snaps))
	}
	if len(extract.tasks) != 1 {
		t.Fatalf("expected only 1 extract task across two identical fetches, got %d", len(extract.tasks))
	}
}

// Grounded on spec.md §8 boundary case: body of size limit is accepted,
// limit+1 triggers MaxBytesExceeded and no snapshot.
func TestFetch_MaxBytesExceededRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer server.Close()

	snaps := &fakeSnapshots{}
	extract := &fakeExtract{}
	f := New(snaps, extract, nil, nil, nil)
	f.Retry = noRetry()
	routeToServer(f, server)

	profile := testProfile(source.StrategyFeed, publicEndpoint)
	profile.Limits.MaxBytes = 10

	if _, err := f.Fetch(context.Background(), Task{SourceID: "src1", Profile: profile}, time.Now()); err == nil {
		t.Fatalf("expected an error from exhausted retries on oversized body")
	}
	if len(snaps.snaps) != 0 {
		t.Fatalf("expected no snapshot for an oversized body")
	}
	if len(snaps.attempts) != 1 {
		t.Fatalf("expected 1 failed FetchAttempt row, got %d", len(snaps.attempts))
	}
	if snaps.attempts[0].ErrorClass != "MaxBytesExceeded" {
		t.Fatalf("expected MaxBytesExceeded, got %q", snaps.attempts[0].ErrorClass)
	}
}

func TestFetch_NoConfiguredEndpointIsANoOp(t *testing.T) {
	snaps := &fakeSnapshots{}
	f := New(snaps, nil, nil, nil, nil)

	result, err := f.Fetch(context.Background(), Task{
		SourceID: "src1",
		Profile:  source.Profile{Strategy: source.StrategyFeed, Endpoints: map[string]string{}},
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != "" {
		t.Fatalf("expected a zero-value Result, got %+v", result)
	}
	if len(snaps.attempts) != 0 {
		t.Fatalf("expected no FetchAttempt rows for a missing endpoint")
	}
}

// cacheStoreAdapter adapts cache.MemoryStore (no-ctx methods) to cache.Store
// (ctx-taking methods), for tests that need a real rate-limit counter
// without standing up Redis.
type cacheStoreAdapter struct {
	m *cache.MemoryStore
}

func (a cacheStoreAdapter) Incr(ctx context.Context, key string, ttl time.Duration) int64 {
	return a.m.Incr(key, ttl)
}
func (a cacheStoreAdapter) Decr(ctx context.Context, key string) { a.m.Decr(key) }
func (a cacheStoreAdapter) Get(ctx context.Context, key string) (int64, bool) {
	return a.m.Get(key)
}
func (a cacheStoreAdapter) Set(ctx context.Context, key string, value int64, ttl time.Duration) {
	a.m.Set(key, value, ttl)
}

var _ strategy.Executor = (*strategy.HTTPExecutor)(nil)
