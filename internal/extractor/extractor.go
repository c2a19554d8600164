// Package extractor implements the strategy dispatch of spec.md §4.4: it
// turns one fetcher.ExtractTask into zero or more organizer.Item values and
// hands each to the organize queue. Follows internal/fetcher's narrow
// interface / nil-safe enqueuer pattern so it is buildable and testable
// ahead of internal/queue.
package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/extractor/strategy"
	"github.com/pautaradar/newsradar/internal/fetcher"
	"github.com/pautaradar/newsradar/internal/organizer"
	"github.com/pautaradar/newsradar/internal/source"
)

// OrganizeTask is the payload handed to the organize queue (spec.md §4.4:
// "One organize task per item").
type OrganizeTask struct {
	Item organizer.Item
}

// OrganizeEnqueuer hands an OrganizeTask to the durable queue. A nil
// OrganizeEnqueuer is valid, the same accommodation internal/fetcher makes
// for ExtractEnqueuer ahead of internal/queue existing.
type OrganizeEnqueuer interface {
	EnqueueOrganize(ctx context.Context, task OrganizeTask) error
}

// Result summarizes one Extract call for the caller (worker loop, tests).
type Result struct {
	ItemCount int
}

// Extractor wires the four strategy.*Extractor implementations into the
// fetcher->extractor->organizer pipeline boundary.
type Extractor struct {
	Organize OrganizeEnqueuer
	Metrics  *metrics.Metrics
	Log      *logging.Logger

	feed *strategy.FeedExtractor
	api  *strategy.APIExtractor
	html *strategy.HTMLExtractor
	pdf  *strategy.PDFExtractor
}

func New(organize OrganizeEnqueuer, m *metrics.Metrics, log *logging.Logger) *Extractor {
	return &Extractor{
		Organize: organize,
		Metrics:  m,
		Log:      log,
		feed:     strategy.NewFeedExtractor(),
		api:      strategy.NewAPIExtractor(),
		html:     strategy.NewHTMLExtractor(),
		pdf:      strategy.NewPDFExtractor(),
	}
}

// Extract dispatches task.Profile.Strategy to the matching strategy
// implementation, converts every produced strategy.Item into an
// organizer.Item, and enqueues one organize task per item.
func (e *Extractor) Extract(ctx context.Context, task fetcher.ExtractTask, now time.Time) (Result, error) {
	pageURL := primaryEndpoint(task.Profile)

	var items []strategy.Item
	var err error

	switch task.Profile.Strategy {
	case source.StrategyFeed:
		items, err = e.feed.Extract(task.Body)
	case source.StrategyAPI, source.StrategySPAAPI:
		items, err = e.api.Extract(task.Body, task.Profile.Metadata.APIContract)
	case source.StrategyHTML, source.StrategySPAHeadless:
		items, err = e.html.Extract(task.Body, pageURL)
	case source.StrategyPDF:
		var raw []byte
		raw, err = decodePDFBody(task.Body)
		if err == nil {
			items, err = e.pdf.Extract(raw, pageURL)
		}
	default:
		err = fmt.Errorf("extractor: unknown strategy %q", task.Profile.Strategy)
	}

	strategyLabel := string(task.Profile.Strategy)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.ExtractErrorsTotal.WithLabelValues(strategyLabel, classifyError(task.Profile.Strategy, err)).Inc()
		}
		return Result{}, err
	}

	enqueued := 0
	for _, it := range items {
		if it.URL == "" || it.Text == "" {
			continue
		}
		oi := toOrganizerItem(task, it, now)
		if e.Metrics != nil {
			e.Metrics.ExtractedItemsTotal.WithLabelValues(strategyLabel).Inc()
		}
		if e.Organize != nil {
			if enqErr := e.Organize.EnqueueOrganize(ctx, OrganizeTask{Item: oi}); enqErr != nil {
				if e.Log != nil {
					e.Log.WithField("source_id", task.SourceID).WithError(enqErr).Warn("extractor: failed to enqueue organize task")
				}
				continue
			}
		}
		enqueued++
	}
	return Result{ItemCount: enqueued}, nil
}

// toOrganizerItem finalizes an extracted strategy.Item into the organizer's
// input contract: a per-item content_hash = SHA-256(title || url || text)
// (spec.md §4.4) and the doc_meta fields the organizer stores verbatim.
func toOrganizerItem(task fetcher.ExtractTask, it strategy.Item, now time.Time) organizer.Item {
	canonical := it.CanonicalURL
	url := it.URL

	var snapIDPtr *int64
	if task.SnapshotID != 0 {
		id := task.SnapshotID
		snapIDPtr = &id
	}

	return organizer.Item{
		SourceID:     task.SourceID,
		Tier:         task.Tier,
		IsOfficial:   task.IsOfficial,
		URL:          url,
		CanonicalURL: canonical,
		Title:        it.Title,
		Text:         it.Text,
		ContentHash:  contentHash(it.Title, url, it.Text),
		Author:       it.Author,
		Lang:         it.Lang,
		PublishedAt:  it.PublishedAt,
		ModifiedAt:   it.ModifiedAt,
		SnapshotID:   snapIDPtr,
		HydrationPool: string(task.Profile.Pool),
	}
}

func contentHash(title, url, text string) string {
	sum := sha256.Sum256([]byte(title + url + text))
	return hex.EncodeToString(sum[:])
}

func decodePDFBody(body []byte) ([]byte, error) {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(decoded, body)
	if err != nil {
		return nil, fmt.Errorf("decode pdf payload: %w", err)
	}
	return decoded[:n], nil
}

// primaryEndpoint picks the URL used for an extracted item's url/doc_meta
// fields when the strategy produces a single item per page (HTML/
// SPA_HEADLESS/PDF), mirroring internal/fetcher's own endpoint-priority
// selection (spec.md §4.3 step 1).
func primaryEndpoint(p source.Profile) string {
	for _, key := range source.EndpointKeyPriority(p.Strategy) {
		if v, ok := p.Endpoints[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

// classifyError maps a strategy failure onto spec.md §7's parse/extract
// error family (JSONDecode, HTMLParse, PDFParse, OCRUnavailable).
func classifyError(s source.Strategy, err error) string {
	if err == strategy.ErrOCRUnavailable {
		return "OCRUnavailable"
	}
	switch s {
	case source.StrategyAPI, source.StrategySPAAPI:
		return "JSONDecode"
	case source.StrategyHTML, source.StrategySPAHeadless:
		return "HTMLParse"
	case source.StrategyPDF:
		return "PDFParse"
	default:
		return "ParseError"
	}
}
