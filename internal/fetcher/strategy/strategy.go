// Package strategy implements the fetcher's per-Strategy execution variants
// (spec.md §4.3 step 5): a plain HTTP client for FEED/HTML/API/SPA_API, a
// binary downloader for PDF, and a pluggable headless renderer for
// SPA_HEADLESS. Grounded on the teacher's httputil.CopyHTTPClientWithTimeout
// convention of never mutating a caller-supplied *http.Client.
package strategy

import (
	"context"
	"time"
)

// Request is the strategy-agnostic execution input assembled by the fetcher
// from a source.Profile and the endpoint it selected.
type Request struct {
	URL             string
	Method          string
	Body            string
	Headers         map[string]string
	Timeout         time.Duration
	MaxBytes        int64
	IfNoneMatch     string
	IfModifiedSince string

	// HeadlessURLContains/MaxCount/MaxBytes configure SPA_HEADLESS's XHR
	// capture (source.HeadlessCapture); zero value disables capture.
	HeadlessURLContains string
	HeadlessMaxCount    int
	HeadlessMaxBytes    int64
}

// PayloadKind mirrors the extract task's payload_kind (spec.md §4.3 step 7).
type PayloadKind string

const (
	PayloadText     PayloadKind = "text"
	PayloadPDFBase64 PayloadKind = "pdf_base64"
)

// Response is a strategy's execution result, pre-size-enforcement.
type Response struct {
	StatusCode   int
	ContentType  string
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
	PayloadKind  PayloadKind
}

// Executor runs one fetch for a single strategy.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}
