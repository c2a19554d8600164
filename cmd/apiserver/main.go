// Command apiserver serves the HTTP surface of spec.md §6: CMS drafting,
// editorial feedback, read-only queries, the live event stream, health,
// and metrics.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/runtime"
	"github.com/pautaradar/newsradar/internal/editorial"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/httpapi"
	"github.com/pautaradar/newsradar/internal/pushstream"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	ctx := context.Background()

	wc, closer, err := runtime.Build(ctx, "apiserver")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer closer()

	events := postgres.NewEventStore(wc.DB)
	documents := postgres.NewDocumentStore(wc.DB)

	slo := eventstate.SLOConfig{
		FastPathS:      wc.Config.SLOFastPathS,
		RenderPathS:    wc.Config.SLORenderPathS,
		DeepPathS:      wc.Config.SLODeepPathS,
		QuarantineTTLS: wc.Config.QuarantineTTLS,
	}

	ed := editorial.New(events, wc.Queue, wc.Queue, slo, wc.Log)
	stream := pushstream.New(events)

	srv := httpapi.New(events, documents, ed, stream, slo, wc.Config.CORSOrigins, wc.Log, wc.Metrics)

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the SSE stream handler holds the connection open
	}

	go func() {
		wc.Log.WithField("addr", *addr).Info("apiserver: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			wc.Log.WithError(err).Fatal("apiserver: listen failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		wc.Log.WithError(err).Warn("apiserver: shutdown did not complete cleanly")
	}
}
