package quota

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/models"
	badgerstorage "github.com/ternarybob/obsoleta/internal/storage/badger"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "data")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	kv := badgerstorage.NewKVStorage(db, logger)

	guard, err := NewGuard(kv,
		&common.AutoCheckConfig{Enabled: true, DailyCeiling: 3, Timezone: "Asia/Tokyo", StaleAfter: 5 * time.Minute},
		&common.SearchConfig{CreditsFloor: 10, CreditsPerDay: 100},
		logger)
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}
	return guard
}

// setNow pins the guard's clock for deterministic boundary tests
func setNow(g *Guard, at time.Time) {
	g.now = func() time.Time { return at }
}

func TestGuardSeedsDefaults(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	state, err := guard.State(ctx)
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if !state.Enabled {
		t.Error("Expected enabled seeded from config")
	}
	if state.SearchCreditsRemaining != 100 {
		t.Errorf("Expected credits seeded from daily quota, got %d", state.SearchCreditsRemaining)
	}
	if state.DailyCount != 0 || state.IsRunning {
		t.Errorf("Expected fresh counters, got count=%d running=%v", state.DailyCount, state.IsRunning)
	}
	if state.LastResetDate == "" {
		t.Error("Expected reset date stamped on seed")
	}
}

func TestGuardDailyCeiling(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, reason, err := guard.CanProceed(ctx)
		if err != nil {
			t.Fatalf("CanProceed failed: %v", err)
		}
		if !ok {
			t.Fatalf("Expected attempt %d to proceed, blocked: %s", i, reason)
		}
		if err := guard.RecordAttempt(ctx); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}

	ok, reason, err := guard.CanProceed(ctx)
	if err != nil {
		t.Fatalf("CanProceed failed: %v", err)
	}
	if ok {
		t.Error("Expected ceiling to block the fourth attempt")
	}
	if !strings.Contains(reason, "daily ceiling") {
		t.Errorf("Expected ceiling reason, got %q", reason)
	}
}

func TestGuardDailyResetAtBoundary(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	day1 := time.Date(2026, 3, 14, 23, 50, 0, 0, tokyo)
	setNow(guard, day1)

	if err := guard.RecordAttempt(ctx); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := guard.RecordAttempt(ctx); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := guard.ObserveSearchCredits(ctx, 42); err != nil {
		t.Fatalf("ObserveSearchCredits failed: %v", err)
	}

	state, err := guard.State(ctx)
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if state.DailyCount != 2 {
		t.Fatalf("Expected count 2 before boundary, got %d", state.DailyCount)
	}

	// Cross midnight in the configured timezone
	setNow(guard, day1.Add(20*time.Minute))

	state, err = guard.State(ctx)
	if err != nil {
		t.Fatalf("Failed to load state after boundary: %v", err)
	}
	if state.DailyCount != 0 {
		t.Errorf("Expected counter reset at day boundary, got %d", state.DailyCount)
	}
	if state.SearchCreditsRemaining != 100 {
		t.Errorf("Expected credits reseeded at day boundary, got %d", state.SearchCreditsRemaining)
	}
	if state.LastResetDate != "2026-03-15" {
		t.Errorf("Expected reset date advanced, got %s", state.LastResetDate)
	}

	// A second read on the same day must not reset again
	if err := guard.RecordAttempt(ctx); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	state, err = guard.State(ctx)
	if err != nil {
		t.Fatalf("Failed to reload state: %v", err)
	}
	if state.DailyCount != 1 {
		t.Errorf("Expected count 1 after single post-reset attempt, got %d", state.DailyCount)
	}
}

func TestGuardRunInProgressBlocksProceedNotContinue(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	if err := guard.SetRunning(ctx, true); err != nil {
		t.Fatalf("SetRunning failed: %v", err)
	}

	ok, reason, err := guard.CanProceed(ctx)
	if err != nil {
		t.Fatalf("CanProceed failed: %v", err)
	}
	if ok || !strings.Contains(reason, "already in progress") {
		t.Errorf("Expected in-progress run to block, got ok=%v reason=%q", ok, reason)
	}

	ok, reason, err = guard.CanContinue(ctx)
	if err != nil {
		t.Fatalf("CanContinue failed: %v", err)
	}
	if !ok {
		t.Errorf("Expected mid-run check to ignore the running flag, blocked: %s", reason)
	}
}

func TestGuardLLMCooldown(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	setNow(guard, start)

	if err := guard.SetLLMCooldown(ctx, 90); err != nil {
		t.Fatalf("SetLLMCooldown failed: %v", err)
	}

	ok, reason, err := guard.CanProceed(ctx)
	if err != nil {
		t.Fatalf("CanProceed failed: %v", err)
	}
	if ok || !strings.Contains(reason, "cooldown") {
		t.Errorf("Expected cooldown to block, got ok=%v reason=%q", ok, reason)
	}

	cooldown, err := guard.CooldownSeconds(ctx)
	if err != nil {
		t.Fatalf("CooldownSeconds failed: %v", err)
	}
	if cooldown <= 0 || cooldown > 91 {
		t.Errorf("Expected cooldown near 90s, got %d", cooldown)
	}

	setNow(guard, start.Add(91*time.Second))
	cooldown, err = guard.CooldownSeconds(ctx)
	if err != nil {
		t.Fatalf("CooldownSeconds failed: %v", err)
	}
	if cooldown != 0 {
		t.Errorf("Expected cooldown expired, got %d", cooldown)
	}
	if ok, reason, _ := guard.CanProceed(ctx); !ok {
		t.Errorf("Expected proceed after cooldown, blocked: %s", reason)
	}
}

func TestGuardCreditsFloorDisables(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	if err := guard.ObserveSearchCredits(ctx, 10); err != nil {
		t.Fatalf("ObserveSearchCredits failed: %v", err)
	}

	ok, reason, err := guard.CanProceed(ctx)
	if err != nil {
		t.Fatalf("CanProceed failed: %v", err)
	}
	if ok || !strings.Contains(reason, "credits") {
		t.Errorf("Expected credits floor to block, got ok=%v reason=%q", ok, reason)
	}

	state, err := guard.State(ctx)
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if state.Enabled {
		t.Error("Expected floor breach to persist auto-disable")
	}
}

func TestGuardRecoverStuckRun(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	setNow(guard, start)

	if err := guard.SetRunning(ctx, true); err != nil {
		t.Fatalf("SetRunning failed: %v", err)
	}

	// Still within the staleness window
	setNow(guard, start.Add(2*time.Minute))
	reset, err := guard.RecoverStuckRun(ctx)
	if err != nil {
		t.Fatalf("RecoverStuckRun failed: %v", err)
	}
	if reset {
		t.Error("Expected no reset inside the staleness window")
	}

	// Past the window the abandoned run is recovered, exactly once
	setNow(guard, start.Add(10*time.Minute))
	reset, err = guard.RecoverStuckRun(ctx)
	if err != nil {
		t.Fatalf("RecoverStuckRun failed: %v", err)
	}
	if !reset {
		t.Error("Expected stale run to be reset")
	}

	reset, err = guard.RecoverStuckRun(ctx)
	if err != nil {
		t.Fatalf("RecoverStuckRun failed: %v", err)
	}
	if reset {
		t.Error("Expected second recovery to be a no-op")
	}

	if ok, reason, _ := guard.CanProceed(ctx); !ok {
		t.Errorf("Expected proceed after recovery, blocked: %s", reason)
	}
}

func TestGuardApplyUpdate(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	enabled := false
	credits := 55
	state, err := guard.ApplyUpdate(ctx, &models.AutoCheckStateUpdate{
		Enabled:                &enabled,
		SearchCreditsRemaining: &credits,
	})
	if err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if state.Enabled {
		t.Error("Expected update to disable auto-check")
	}
	if state.SearchCreditsRemaining != 55 {
		t.Errorf("Expected credits override 55, got %d", state.SearchCreditsRemaining)
	}
}
