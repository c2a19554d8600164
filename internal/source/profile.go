// Package source models the per-crawler configuration described in
// spec.md §3 (SourceProfile) and §4.1: a discriminated union keyed by
// Strategy, validated on read rather than trusted as opaque data.
package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Strategy identifies the fetch/extract pipeline a source uses.
type Strategy string

const (
	StrategyFeed        Strategy = "FEED"
	StrategyHTML        Strategy = "HTML"
	StrategyAPI         Strategy = "API"
	StrategySPAAPI      Strategy = "SPA_API"
	StrategySPAHeadless Strategy = "SPA_HEADLESS"
	StrategyPDF         Strategy = "PDF"
)

// Pool identifies the worker pool class a strategy is routed to.
type Pool string

const (
	PoolFast        Pool = "FAST"
	PoolHeavyRender Pool = "HEAVY_RENDER"
	PoolDeepExtract Pool = "DEEP_EXTRACT"
)

// strategyPool is the fixed strategy/pool pairing table from spec.md §4.1.
var strategyPool = map[Strategy]Pool{
	StrategyFeed:        PoolFast,
	StrategyHTML:        PoolFast,
	StrategyAPI:         PoolFast,
	StrategySPAAPI:      PoolHeavyRender,
	StrategySPAHeadless: PoolHeavyRender,
	StrategyPDF:         PoolDeepExtract,
}

// endpointKeyPriority is the fetcher's URL-selection order per strategy
// (spec.md §4.3 step 1), and also the set validated as "at least one
// endpoint key matching strategy" in §4.1.
var endpointKeyPriority = map[Strategy][]string{
	StrategyFeed:        {"feed", "latest", "api"},
	StrategyHTML:        {"feed", "latest", "api"},
	StrategyAPI:         {"api", "latest", "feed"},
	StrategySPAAPI:      {"api", "latest", "feed"},
	StrategySPAHeadless: {"api", "latest", "feed"},
	StrategyPDF:         {"latest", "feed", "api"},
}

// EndpointKeyPriority returns the ordered endpoint-key preference for a
// strategy, used by both validation and the fetcher's URL selection.
func EndpointKeyPriority(s Strategy) []string {
	return endpointKeyPriority[s]
}

// Cadence is exactly one of IntervalSeconds or Cron (spec.md §3).
type Cadence struct {
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	Cron            string `json:"cron,omitempty"`
}

// Limits bounds a source's fetch behavior (spec.md §3).
type Limits struct {
	RatePerMin        int   `json:"rate_per_min"`
	DomainConcurrency int   `json:"domain_concurrency"`
	TimeoutS          int   `json:"timeout_s"`
	MaxBytes          int64 `json:"max_bytes"`
}

// CalendarProfile configures the yield monitor's business-hours suppression
// and same-hour baseline bucketing for a source (spec.md §4.12). The
// expected-yield baseline itself is always computed from rolling history,
// never a static table - there is nothing to configure there beyond which
// timezone "hour" means and whether off-hours silence is expected.
type CalendarProfile struct {
	BusinessHoursOnly bool   `json:"business_hours_only,omitempty"`
	TimezoneName      string `json:"timezone,omitempty"`
}

// Observability configures the yield monitor for a source (spec.md §3).
type Observability struct {
	WindowH         int              `json:"window_h"`
	BaselineRolling bool             `json:"baseline_rolling"`
	CalendarProfile *CalendarProfile `json:"calendar_profile,omitempty"`
}

// APIContract describes how to resolve an API/SPA_API response into items
// (spec.md §4.4).
type APIContract struct {
	ItemsPath          string   `json:"items_path,omitempty"`
	TextFields         []string `json:"text_fields"`
	URLFields          []string `json:"url_fields"`
	CanonicalURLFields []string `json:"canonical_url_fields,omitempty"`
	AuthorFields       []string `json:"author_fields,omitempty"`
	LangFields         []string `json:"lang_fields,omitempty"`
	PublishedFields    []string `json:"published_fields,omitempty"`
	ModifiedFields     []string `json:"modified_fields,omitempty"`
}

// SPAAPIRequest augments the API request for the SPA_API strategy (spec.md §4.3).
type SPAAPIRequest struct {
	Method  string            `json:"method,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// HeadlessCapture configures XHR JSON capture for SPA_HEADLESS (spec.md §4.3).
type HeadlessCapture struct {
	URLContains string `json:"url_contains"`
	MaxCount    int    `json:"max_count"`
	MaxBytes    int64  `json:"max_bytes"`
}

// Metadata holds the strategy-specific contracts (spec.md §3).
type Metadata struct {
	APIContract     *APIContract     `json:"api_contract,omitempty"`
	SPAAPIRequest   *SPAAPIRequest   `json:"spa_api_request,omitempty"`
	HeadlessCapture *HeadlessCapture `json:"headless_capture,omitempty"`
}

// Profile is the validated SourceProfile of spec.md §3.
type Profile struct {
	Strategy      Strategy          `json:"strategy"`
	Pool          Pool              `json:"pool"`
	Endpoints     map[string]string `json:"endpoints"`
	Headers       map[string]string `json:"headers,omitempty"`
	Cadence       Cadence           `json:"cadence"`
	Limits        Limits            `json:"limits"`
	Observability Observability     `json:"observability"`
	Metadata      Metadata          `json:"metadata,omitempty"`
}

// Validate checks a Profile against spec.md §4.1's acceptance rules,
// returning the first violation found (bootstrap aborts per-row on error).
func (p *Profile) Validate() error {
	wantPool, ok := strategyPool[p.Strategy]
	if !ok {
		return fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	if p.Pool != wantPool {
		return fmt.Errorf("strategy %s requires pool %s, got %s", p.Strategy, wantPool, p.Pool)
	}

	if len(p.Endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}
	for key, raw := range p.Endpoints {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint %q is not a valid http(s) URL: %q", key, raw)
		}
	}
	if !hasAnyKey(p.Endpoints, endpointKeyPriority[p.Strategy]) {
		return fmt.Errorf("strategy %s requires one of endpoint keys %v", p.Strategy, endpointKeyPriority[p.Strategy])
	}

	if err := p.validateCadence(); err != nil {
		return err
	}

	if p.Limits.RatePerMin <= 0 || p.Limits.DomainConcurrency <= 0 || p.Limits.TimeoutS <= 0 || p.Limits.MaxBytes <= 0 {
		return fmt.Errorf("limits must all be positive")
	}

	return p.validateMetadata()
}

func hasAnyKey(m map[string]string, keys []string) bool {
	for _, k := range keys {
		if v, ok := m[k]; ok && strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func (p *Profile) validateCadence() error {
	hasInterval := p.Cadence.IntervalSeconds > 0
	hasCron := strings.TrimSpace(p.Cadence.Cron) != ""
	if hasInterval == hasCron {
		return fmt.Errorf("cadence must specify exactly one of interval_seconds or cron")
	}
	if hasCron {
		fields := strings.Fields(p.Cadence.Cron)
		if len(fields) != 5 {
			return fmt.Errorf("cron %q must have exactly 5 fields", p.Cadence.Cron)
		}
		if _, err := cron.ParseStandard(p.Cadence.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", p.Cadence.Cron, err)
		}
	}
	return nil
}

func (p *Profile) validateMetadata() error {
	switch p.Strategy {
	case StrategyAPI, StrategySPAAPI:
		c := p.Metadata.APIContract
		if c == nil {
			return fmt.Errorf("strategy %s requires metadata.api_contract", p.Strategy)
		}
		if c.ItemsPath != "" && !isDottedPath(c.ItemsPath) {
			return fmt.Errorf("api_contract.items_path %q is not a dotted path", c.ItemsPath)
		}
		if len(c.TextFields) == 0 {
			return fmt.Errorf("api_contract.text_fields must be non-empty")
		}
		if len(c.URLFields) == 0 {
			return fmt.Errorf("api_contract.url_fields must be non-empty")
		}
	case StrategySPAHeadless:
		if cap := p.Metadata.HeadlessCapture; cap != nil {
			if strings.TrimSpace(cap.URLContains) == "" {
				return fmt.Errorf("headless_capture.url_contains must be non-empty when present")
			}
		}
	}
	return nil
}

func isDottedPath(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}
