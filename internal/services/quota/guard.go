package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/models"
)

// stateKey is the KV document holding the shared auto-check state
const stateKey = "autocheck/state"

// Guard gates scheduled EOL-check work against the daily ceiling, the search
// API's remaining credits, and the LLM's rate-limit cooldown. All of its
// state lives in one KV document so a crashed run cannot wedge the scheduler
// invisibly; the in-process mutex only serializes read-modify-write cycles
// within this instance.
type Guard struct {
	kv     interfaces.KeyValueStorage
	config *common.AutoCheckConfig
	search *common.SearchConfig
	logger arbor.ILogger

	mu       sync.Mutex
	location *time.Location
	now      func() time.Time
}

// NewGuard creates the quota guard. The timezone fixes the daily counter's
// reset boundary regardless of where the service runs.
func NewGuard(kv interfaces.KeyValueStorage, cfg *common.AutoCheckConfig, search *common.SearchConfig, logger arbor.ILogger) (*Guard, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Tokyo"
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid autocheck timezone %q: %w", tz, err)
	}
	return &Guard{
		kv:       kv,
		config:   cfg,
		search:   search,
		logger:   logger,
		location: location,
		now:      time.Now,
	}, nil
}

// State returns the current auto-check state with the daily-boundary reset
// applied. A missing document seeds defaults from config.
func (g *Guard) State(ctx context.Context) (*models.AutoCheckState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loadLocked(ctx)
}

// CanProceed reports whether a scheduled run may start new work, with a
// human-readable reason when it may not. Breaching the search credits floor
// auto-disables future scheduled runs.
func (g *Guard) CanProceed(ctx context.Context) (bool, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return false, "", err
	}

	if !state.Enabled {
		return false, "auto-check is disabled", nil
	}
	if state.IsRunning {
		return false, "a run is already in progress", nil
	}
	if ceiling := g.dailyCeiling(); state.DailyCount >= ceiling {
		return false, fmt.Sprintf("daily ceiling reached (%d/%d)", state.DailyCount, ceiling), nil
	}
	if cooldown := g.cooldownSecondsLocked(state); cooldown > 0 {
		return false, fmt.Sprintf("LLM cooldown active, %ds remaining", cooldown), nil
	}
	if state.SearchCreditsRemaining >= 0 && state.SearchCreditsRemaining <= g.search.CreditsFloor {
		state.Enabled = false
		if err := g.saveLocked(ctx, state); err != nil {
			return false, "", err
		}
		g.logger.Warn().
			Int("credits", state.SearchCreditsRemaining).
			Int("floor", g.search.CreditsFloor).
			Msg("Search credits at floor, auto-check disabled")
		return false, "search credits at floor, auto-check disabled", nil
	}

	return true, "", nil
}

// CanContinue is the mid-run variant of CanProceed: the run-in-progress flag
// is the caller's own, so only the ceiling, the cooldown, and the enabled
// switch are checked.
func (g *Guard) CanContinue(ctx context.Context) (bool, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return false, "", err
	}
	if !state.Enabled {
		return false, "auto-check was disabled mid-run", nil
	}
	if ceiling := g.dailyCeiling(); state.DailyCount >= ceiling {
		return false, fmt.Sprintf("daily ceiling reached (%d/%d)", state.DailyCount, ceiling), nil
	}
	if cooldown := g.cooldownSecondsLocked(state); cooldown > 0 {
		return false, fmt.Sprintf("LLM cooldown active, %ds remaining", cooldown), nil
	}
	return true, "", nil
}

// RecordAttempt increments the daily counter and stamps the activity
// heartbeat. Called once per part the scheduled driver works on.
func (g *Guard) RecordAttempt(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return err
	}
	state.DailyCount++
	state.LastActivityTime = g.now().UTC()
	return g.saveLocked(ctx, state)
}

// Heartbeat stamps run activity without counting an attempt
func (g *Guard) Heartbeat(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return err
	}
	state.LastActivityTime = g.now().UTC()
	return g.saveLocked(ctx, state)
}

// SetRunning marks a scheduled run started or finished
func (g *Guard) SetRunning(ctx context.Context, running bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return err
	}
	state.IsRunning = running
	if running {
		state.LastActivityTime = g.now().UTC()
	}
	return g.saveLocked(ctx, state)
}

// CooldownSeconds returns the live LLM cooldown countdown, 0 when none
func (g *Guard) CooldownSeconds(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	return g.cooldownSecondsLocked(state), nil
}

// SetLLMCooldown starts the cooldown countdown after a rate-limited
// classification
func (g *Guard) SetLLMCooldown(ctx context.Context, retrySeconds int) error {
	if retrySeconds <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return err
	}
	state.LLMCooldownUntil = g.now().UTC().Add(time.Duration(retrySeconds) * time.Second)
	return g.saveLocked(ctx, state)
}

// ObserveLLMUsage records the provider's remaining-token signal. Advisory
// only; it never gates by itself.
func (g *Guard) ObserveLLMUsage(usage *interfaces.LLMUsage) {
	if usage == nil || usage.TokensRemaining < 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Failed to record LLM usage signal")
		return
	}
	state.LLMTokensRemaining = usage.TokensRemaining
	if err := g.saveLocked(ctx, state); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to persist LLM usage signal")
	}
}

// ObserveSearchCredits mirrors the search API's remaining-quota signal into
// the shared state
func (g *Guard) ObserveSearchCredits(ctx context.Context, remaining int) error {
	if remaining < 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return err
	}
	state.SearchCreditsRemaining = remaining
	return g.saveLocked(ctx, state)
}

// RecoverStuckRun resets a run flagged in-progress with no activity for
// longer than the staleness window. Idempotent: repeated checks after the
// first reset are no-ops. Returns whether a reset happened.
func (g *Guard) RecoverStuckRun(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	if !state.IsRunning {
		return false, nil
	}
	staleAfter := g.config.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	if g.now().UTC().Sub(state.LastActivityTime) <= staleAfter {
		return false, nil
	}

	state.IsRunning = false
	if err := g.saveLocked(ctx, state); err != nil {
		return false, err
	}
	g.logger.Warn().
		Str("last_activity", state.LastActivityTime.Format(time.RFC3339)).
		Msg("Stuck auto-check run reset")
	return true, nil
}

// ApplyUpdate applies a partial settings update from the API
func (g *Guard) ApplyUpdate(ctx context.Context, update *models.AutoCheckStateUpdate) (*models.AutoCheckState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	if update.Enabled != nil {
		state.Enabled = *update.Enabled
	}
	if update.IsRunning != nil {
		state.IsRunning = *update.IsRunning
	}
	if update.SearchCreditsRemaining != nil {
		state.SearchCreditsRemaining = *update.SearchCreditsRemaining
	}
	if err := g.saveLocked(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (g *Guard) dailyCeiling() int {
	if g.config.DailyCeiling > 0 {
		return g.config.DailyCeiling
	}
	return 50
}

func (g *Guard) cooldownSecondsLocked(state *models.AutoCheckState) int {
	if state.LLMCooldownUntil.IsZero() {
		return 0
	}
	remaining := state.LLMCooldownUntil.Sub(g.now().UTC())
	if remaining <= 0 {
		return 0
	}
	return int(remaining/time.Second) + 1
}

// loadLocked reads the state document and applies the daily-boundary reset.
// The reset fires at most once per calendar day in the configured timezone:
// the counter zeroes when the stored reset date differs from today.
func (g *Guard) loadLocked(ctx context.Context) (*models.AutoCheckState, error) {
	state := &models.AutoCheckState{
		Enabled:                g.config.Enabled,
		SearchCreditsRemaining: g.search.CreditsPerDay,
	}

	raw, err := g.kv.Get(ctx, stateKey)
	switch {
	case errors.Is(err, interfaces.ErrKeyNotFound):
		state.LastResetDate = g.today()
		if err := g.saveLocked(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load auto-check state: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("corrupt auto-check state: %w", err)
	}

	if today := g.today(); state.LastResetDate != today {
		state.DailyCount = 0
		state.LastResetDate = today
		state.SearchCreditsRemaining = g.search.CreditsPerDay
		if err := g.saveLocked(ctx, state); err != nil {
			return nil, err
		}
		g.logger.Info().Str("date", today).Msg("Daily auto-check counter reset")
	}

	return state, nil
}

func (g *Guard) saveLocked(ctx context.Context, state *models.AutoCheckState) error {
	state.UpdatedAt = g.now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode auto-check state: %w", err)
	}
	if err := g.kv.Set(ctx, stateKey, string(raw), "auto-check scheduler state"); err != nil {
		return fmt.Errorf("failed to persist auto-check state: %w", err)
	}
	return nil
}

func (g *Guard) today() string {
	return g.now().In(g.location).Format("2006-01-02")
}
