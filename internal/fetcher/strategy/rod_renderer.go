package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodRenderer drives SPA_HEADLESS fetches with a real headless Chromium
// session: it navigates with asset requests blocked, waits for the page to
// settle, and optionally captures XHR/fetch response bodies whose URL
// contains a configured substring. It lazily launches one shared browser and
// reuses it across pages, mirroring how a long-lived worker would not want to
// pay Chromium startup cost per fetch.
type RodRenderer struct {
	Headless    bool
	UserAgent   string
	NavTimeout  time.Duration
	BlockAssets bool

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRodRenderer(headless bool, userAgent string, navTimeout time.Duration) *RodRenderer {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; newsradar-fetcher/1.0; +institutional-monitor)"
	}
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	return &RodRenderer{
		Headless:    headless,
		UserAgent:   userAgent,
		NavTimeout:  navTimeout,
		BlockAssets: true,
	}
}

// ensureBrowser lazily launches Chromium and connects, caching the browser
// instance. Grounded on SessionManager.Start's launcher.New().Bin(bin).
// Headless(...).Launch() / rod.New().ControlURL(controlURL) pattern.
func (r *RodRenderer) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	controlURL, err := launcher.New().Headless(r.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	r.browser = browser
	return browser, nil
}

// Close releases the shared browser, if one was launched.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

// Render implements strategy.Renderer. It opens a fresh incognito page per
// call so sessions never share cookies/storage across sources, navigates
// with asset requests (image/font/stylesheet/media) blocked, and — when
// urlContains is non-empty — records up to maxCount response bodies from
// requests whose URL contains that substring, each capped at maxBytes.
func (r *RodRenderer) Render(ctx context.Context, url string, urlContains string, maxCount int, maxBytes int64) ([]byte, [][]byte, error) {
	browser, err := r.ensureBrowser(ctx)
	if err != nil {
		return nil, nil, err
	}

	navCtx, cancel := context.WithTimeout(ctx, r.NavTimeout)
	defer cancel()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("open incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(navCtx)
	defer page.Close()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.UserAgent}); err != nil {
		return nil, nil, fmt.Errorf("set user agent: %w", err)
	}

	var captured [][]byte
	var capturedMu sync.Mutex
	stopCapture := func() {}
	if r.BlockAssets || (urlContains != "" && maxCount > 0) {
		router := page.HijackRequests()
		router.MustAdd("*", func(hijack *rod.Hijack) {
			req := hijack.Request.URL().String()
			if r.BlockAssets && isBlockedAssetType(hijack.Request.Type()) {
				hijack.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
			hijack.MustLoadResponse()
			if contains(req, urlContains) {
				capturedMu.Lock()
				if len(captured) < maxCount {
					body := []byte(hijack.Response.Body())
					if maxBytes > 0 && int64(len(body)) > maxBytes {
						body = body[:maxBytes]
					}
					captured = append(captured, body)
				}
				capturedMu.Unlock()
			}
		})
		go router.Run()
		stopCapture = func() { _ = router.Stop() }
	}
	defer stopCapture()

	if err := page.Navigate(url); err != nil {
		return nil, nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, nil, fmt.Errorf("wait for load: %w", err)
	}
	_ = page.WaitIdle(r.NavTimeout)

	html, err := page.HTML()
	if err != nil {
		return nil, nil, fmt.Errorf("read rendered html: %w", err)
	}

	capturedMu.Lock()
	out := captured
	capturedMu.Unlock()
	return []byte(html), out, nil
}

func isBlockedAssetType(t proto.NetworkResourceType) bool {
	switch t {
	case proto.NetworkResourceTypeImage, proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeStylesheet, proto.NetworkResourceTypeMedia:
		return true
	default:
		return false
	}
}

func contains(haystack, needle string) bool {
	return len(needle) > 0 && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}
