package strategy

import (
	"bytes"
	"context"
	"errors"
)

// ErrHeadlessUnavailable is returned when no Renderer is configured for this
// deployment; the fetcher records it as a ConnectError failure, the class
// classifyExecError gives any error it does not otherwise recognize.
var ErrHeadlessUnavailable = errors.New("headless rendering is not configured")

// headlessBodyOpen/headlessBodyClose bound an XHR capture payload appended
// to the rendered HTML body (spec.md §4.3 step 5: "captured payloads are
// appended to the HTML body between explicit sentinel markers").
const (
	headlessBodyOpen  = "\n<!--NEWSRADAR_XHR_CAPTURE_BEGIN-->\n"
	headlessBodyClose = "\n<!--NEWSRADAR_XHR_CAPTURE_END-->\n"
)

// Renderer drives an actual headless browser session; RodRenderer is the
// production implementation (go-rod/Chromium, see rod_renderer.go).
// HeadlessExecutor stays pluggable on this interface so the fetcher's
// preflight/persistence contract is unit-testable against a fake Renderer
// without a real browser.
type Renderer interface {
	// Render navigates to url with asset blocking enabled and returns the
	// resulting HTML along with any captured XHR JSON payloads matching
	// urlContains, each bounded by maxBytes, up to maxCount payloads.
	Render(ctx context.Context, url string, urlContains string, maxCount int, maxBytes int64) (html []byte, captured [][]byte, err error)
}

// HeadlessExecutor executes SPA_HEADLESS fetches via a pluggable Renderer.
type HeadlessExecutor struct {
	Renderer Renderer
}

func NewHeadlessExecutor(r Renderer) *HeadlessExecutor {
	return &HeadlessExecutor{Renderer: r}
}

func (h *HeadlessExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	if h.Renderer == nil {
		return Response{}, ErrHeadlessUnavailable
	}

	html, captured, err := h.Renderer.Render(ctx, req.URL, req.HeadlessURLContains, req.HeadlessMaxCount, req.HeadlessMaxBytes)
	if err != nil {
		return Response{}, err
	}

	body := html
	if len(captured) > 0 {
		var buf bytes.Buffer
		buf.Write(html)
		buf.WriteString(headlessBodyOpen)
		for _, payload := range captured {
			buf.Write(payload)
			buf.WriteByte('\n')
		}
		buf.WriteString(headlessBodyClose)
		body = buf.Bytes()
	}

	limit := req.MaxBytes
	if limit > 0 && int64(len(body)) > limit {
		return Response{}, ErrMaxBytesExceeded
	}

	return Response{
		StatusCode:  200,
		ContentType: "text/html",
		Body:        body,
		PayloadKind: PayloadText,
	}, nil
}
