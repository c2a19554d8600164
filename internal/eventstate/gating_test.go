package eventstate

import (
	"testing"
	"time"
)

func defaultSLO() SLOConfig {
	return SLOConfig{FastPathS: 60 * time.Second, RenderPathS: 120 * time.Second, DeepPathS: 300 * time.Second, QuarantineTTLS: 900 * time.Second}
}

// Grounded on original_source/backend/tests/test_state_engine.py's
// test_action_gating_blocks_merge_while_hydrating_before_timeout.
func TestGate_BlocksMergeWhileHydratingBeforeTimeout(t *testing.T) {
	now := time.Now()
	started := now.Add(-5 * time.Second)

	allowed, reason := Gate(ActionMerge, Hydrating, "FAST_POOL", started, now, defaultSLO())
	if allowed {
		t.Fatalf("expected blocked")
	}
	if reason != BlockHydrating {
		t.Fatalf("expected %s, got %s", BlockHydrating, reason)
	}
}

// Grounded on test_action_gating_allows_merge_after_hydrating_timeout.
func TestGate_AllowsMergeAfterHydratingTimeout(t *testing.T) {
	now := time.Now()
	started := now.Add(-61 * time.Second)

	allowed, reason := Gate(ActionMerge, Hydrating, "FAST_POOL", started, now, defaultSLO())
	if !allowed {
		t.Fatalf("expected allowed, got blocked with reason %s", reason)
	}
	if reason != "" {
		t.Fatalf("expected empty reason on allow, got %s", reason)
	}
}

// Grounded on test_action_gating_blocks_actions_on_tombstone.
func TestGate_BlocksPautarOnMergedTombstone(t *testing.T) {
	allowed, reason := Gate(ActionPautar, Merged, "FAST_POOL", time.Time{}, time.Now(), defaultSLO())
	if allowed {
		t.Fatalf("expected blocked")
	}
	if reason != BlockTombstone {
		t.Fatalf("expected %s, got %s", BlockTombstone, reason)
	}
}

func TestGate_BlocksSplitOnIgnoredAndExpired(t *testing.T) {
	now := time.Now()
	slo := defaultSLO()

	if allowed, reason := Gate(ActionSplit, Ignored, "FAST_POOL", now, now, slo); allowed || reason != BlockIgnored {
		t.Fatalf("expected IGNORED block, got allowed=%v reason=%s", allowed, reason)
	}
	if allowed, reason := Gate(ActionSplit, Expired, "FAST_POOL", now, now, slo); allowed || reason != BlockExpired {
		t.Fatalf("expected EXPIRED block, got allowed=%v reason=%s", allowed, reason)
	}
}

func TestGate_NeverBlocksIgnoreOrSnooze(t *testing.T) {
	now := time.Now()
	started := now.Add(-1 * time.Second)
	slo := defaultSLO()

	for _, current := range []State{Hydrating, Merged, Ignored, Expired, Quarantine, Hot} {
		if allowed, reason := Gate(ActionIgnore, current, "FAST_POOL", started, now, slo); !allowed {
			t.Fatalf("IGNORE should never be gated, got blocked on %s with reason %s", current, reason)
		}
		if allowed, reason := Gate(ActionSnooze, current, "FAST_POOL", started, now, slo); !allowed {
			t.Fatalf("SNOOZE should never be gated, got blocked on %s with reason %s", current, reason)
		}
	}
}

func TestGate_AllowsMergeOnHotAndQuarantine(t *testing.T) {
	now := time.Now()
	slo := defaultSLO()

	if allowed, _ := Gate(ActionMerge, Hot, "FAST_POOL", now, now, slo); !allowed {
		t.Fatalf("expected MERGE allowed on HOT")
	}
	if allowed, _ := Gate(ActionMerge, Quarantine, "FAST_POOL", now, now, slo); !allowed {
		t.Fatalf("expected MERGE allowed on QUARANTINE")
	}
}
