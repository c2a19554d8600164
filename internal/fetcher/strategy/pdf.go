package strategy

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
)

// PDFExecutor downloads a binary PDF and base64-encodes it for the extract
// task transport (spec.md §4.3 step 5, "PDF: download binary, base64-encode
// for transport").
type PDFExecutor struct {
	Client    *http.Client
	UserAgent string
}

func NewPDFExecutor(client *http.Client, userAgent string) *PDFExecutor {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = "newsradar-fetcher/1.0"
	}
	return &PDFExecutor{Client: client, UserAgent: userAgent}
}

func (p *PDFExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", p.UserAgent)
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}

	client := copyClientWithTimeout(p.Client, req.Timeout)
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	out := Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		PayloadKind: PayloadPDFBase64,
	}
	if resp.StatusCode == http.StatusNotModified {
		out.NotModified = true
		return out, nil
	}

	limit := req.MaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > limit {
		return Response{}, ErrMaxBytesExceeded
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)
	out.Body = encoded
	return out, nil
}
