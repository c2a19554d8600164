package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pautaradar/newsradar/internal/pushstream"
)

// sseWriter adapts pushstream.Writer onto a flushing net/http response, the
// standard library's SSE pattern (spec.md §4.11/§6: no pack example
// implements raw text/event-stream, every streaming example there rides
// gRPC, a gorilla/websocket connection, or an in-process bus instead).
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) Write(ctx context.Context, f pushstream.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", f.Kind, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) Heartbeat(ctx context.Context) error {
	if _, err := fmt.Fprintf(s.w, "event: ping\ndata: {}\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleStream serves GET /events/stream (spec.md §4.11, §6): named SSE
// events EVENT_UPSERT, EVENT_STATE_CHANGED, EVENT_MERGED, and a ping
// heartbeat. The handler reads no cursor from the client, so every
// connection, a reconnect included, starts from "now" and only shows
// activity from that point forward.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	now := time.Now().UTC()
	cursors := pushstream.Cursors{
		EventUpsert:  pushstream.Cursor{Time: now},
		StateChanged: pushstream.Cursor{Time: now},
		Merged:       pushstream.Cursor{Time: now},
	}

	writer := &sseWriter{w: w, flusher: flusher}
	if err := s.Stream.Run(r.Context(), cursors, writer); err != nil && s.Log != nil {
		s.Log.WithContext(r.Context()).WithError(err).Info("httpapi: stream connection closed")
	}
}
