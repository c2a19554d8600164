package main

import (
	"testing"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/config"
)

func TestSLOFromConfig(t *testing.T) {
	cfg := config.Config{
		SLOFastPathS:   60 * time.Second,
		SLORenderPathS: 120 * time.Second,
		SLODeepPathS:   300 * time.Second,
		QuarantineTTLS: 900 * time.Second,
	}
	slo := sloFromConfig(cfg)
	if slo.FastPathS != cfg.SLOFastPathS || slo.RenderPathS != cfg.SLORenderPathS ||
		slo.DeepPathS != cfg.SLODeepPathS || slo.QuarantineTTLS != cfg.QuarantineTTLS {
		t.Fatalf("sloFromConfig did not carry every field through: %+v", slo)
	}
}

func TestDefaultQueues_ExcludesNLP(t *testing.T) {
	for _, q := range defaultQueues() {
		if q == "nlp" {
			t.Fatalf("defaultQueues should not include the unconsumed nlp queue")
		}
	}
	if len(defaultQueues()) != 8 {
		t.Fatalf("expected 8 default queues, got %d", len(defaultQueues()))
	}
}
