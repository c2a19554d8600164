package strategy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMaxBytesExceeded is returned when a response exceeds Request.MaxBytes.
var ErrMaxBytesExceeded = fmt.Errorf("response exceeds configured max_bytes")

// HTTPExecutor drives FEED/HTML/API/SPA_API: a plain HTTP client, redirects
// followed, an optional method/body override for spa_api_request, and
// conditional-request headers when the fetcher supplies a prior validator.
type HTTPExecutor struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPExecutor(client *http.Client, userAgent string) *HTTPExecutor {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = "newsradar-fetcher/1.0"
	}
	return &HTTPExecutor{Client: client, UserAgent: userAgent}
}

func (h *HTTPExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", h.UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	client := copyClientWithTimeout(h.Client, req.Timeout)
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	out := Response{
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		PayloadKind:  PayloadText,
	}
	if resp.StatusCode == http.StatusNotModified {
		out.NotModified = true
		return out, nil
	}

	limit := req.MaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return Response{}, ErrMaxBytesExceeded
	}
	out.Body = data
	return out, nil
}

// copyClientWithTimeout returns a shallow copy of base with its Timeout set,
// never mutating the shared client instance.
func copyClientWithTimeout(base *http.Client, timeout time.Duration) *http.Client {
	if base == nil {
		return &http.Client{Timeout: timeout}
	}
	if timeout <= 0 {
		return base
	}
	copied := *base
	copied.Timeout = timeout
	return &copied
}
