// Package budget tracks daily and monthly token budgets for outbound
// model and embedding calls.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

// Action defines behavior when the token budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request.
	ActionReject Action = "reject"
)

// Store is the persistence interface for budget counters.
// IncrBy returns the new total so multiple instances converge on one count.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// Tracker is an in-memory token budget tracker with optional persistence.
// Hot path (Check) is in-memory only, no round-trip.
// Record updates in-memory first, then write-behind to the store; the
// returned store total replaces the local counter to absorb drift.
type Tracker struct {
	mu             sync.Mutex
	dailyUsed      int64
	monthlyUsed    int64
	dailyLimit     int64
	monthlyLimit   int64
	action         Action
	prefix         string
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          Store
	logger         *zap.Logger
}

// New creates a budget tracker with the given limits. A limit of 0 is unlimited.
func New(keyPrefix string, dailyLimit, monthlyLimit int64, action Action, logger *zap.Logger) *Tracker {
	if action == "" {
		action = ActionWarn
	}
	now := time.Now().UTC()
	return &Tracker{
		dailyLimit:     dailyLimit,
		monthlyLimit:   monthlyLimit,
		action:         action,
		prefix:         keyPrefix,
		lastDayReset:   truncateToDay(now),
		lastMonthReset: truncateToMonth(now),
		logger:         logger,
	}
}

// WithStore attaches a persistence store and loads current counters.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.store = store
	t.loadFromStore(ctx)
	return t
}

func (t *Tracker) loadFromStore(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()

	if val, err := t.store.Get(ctx, t.dailyKey(now)); err == nil {
		t.dailyUsed = val
	} else {
		t.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}

	if val, err := t.store.Get(ctx, t.monthlyKey(now)); err == nil {
		t.monthlyUsed = val
	} else {
		t.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}

	t.logger.Info("Budget loaded from store",
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("monthly_used", t.monthlyUsed),
	)
	t.publishGauges()
}

func (t *Tracker) dailyKey(now time.Time) string {
	return fmt.Sprintf("%sbudget:daily:%s", t.prefix, now.Format("20060102"))
}

func (t *Tracker) monthlyKey(now time.Time) string {
	return fmt.Sprintf("%sbudget:monthly:%s", t.prefix, now.Format("200601"))
}

// Check verifies the budget allows a new request. In-memory only (hot path).
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.dailyLimit > 0 && t.dailyUsed >= t.dailyLimit
	monthlyExceeded := t.monthlyLimit > 0 && t.monthlyUsed >= t.monthlyLimit

	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.action == ActionReject {
		return domain.ErrBudgetExhausted
	}

	// action=warn: log but allow the request through
	t.logger.Warn("Token budget exceeded",
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("daily_limit", t.dailyLimit),
		zap.Int64("monthly_used", t.monthlyUsed),
		zap.Int64("monthly_limit", t.monthlyLimit),
	)
	return nil
}

// Record registers consumed tokens after a run completes.
// Updates in-memory counters, then write-behind to the store (if attached).
func (t *Tracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	t.mu.Lock()
	t.resetIfNeeded()
	t.dailyUsed += tokens
	t.monthlyUsed += tokens
	t.publishGauges()
	store := t.store
	now := time.Now().UTC()
	dailyKey := t.dailyKey(now)
	monthlyKey := t.monthlyKey(now)
	t.mu.Unlock()

	if store == nil {
		return
	}

	// Write-behind with a background context so store writes don't block
	// the caller past a short bound.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dailyTotal, err := store.IncrBy(ctx, dailyKey, tokens)
	if err != nil {
		t.logger.Warn("Failed to persist daily budget", zap.String("key", dailyKey), zap.Error(err))
		return
	}
	monthlyTotal, err := store.IncrBy(ctx, monthlyKey, tokens)
	if err != nil {
		t.logger.Warn("Failed to persist monthly budget", zap.String("key", monthlyKey), zap.Error(err))
		return
	}

	t.mu.Lock()
	t.dailyUsed = dailyTotal
	t.monthlyUsed = monthlyTotal
	t.publishGauges()
	t.mu.Unlock()
}

// Report is a point-in-time budget snapshot for the usage endpoint.
type Report struct {
	DailyUsed        int64  `json:"daily_used"`
	DailyLimit       int64  `json:"daily_limit"`
	MonthlyUsed      int64  `json:"monthly_used"`
	MonthlyLimit     int64  `json:"monthly_limit"`
	RemainingDaily   int64  `json:"remaining_daily"`
	RemainingMonthly int64  `json:"remaining_monthly"`
	Action           string `json:"action"`
}

// Snapshot returns the current budget state.
func (t *Tracker) Snapshot() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	return Report{
		DailyUsed:        t.dailyUsed,
		DailyLimit:       t.dailyLimit,
		MonthlyUsed:      t.monthlyUsed,
		MonthlyLimit:     t.monthlyLimit,
		RemainingDaily:   remaining(t.dailyLimit, t.dailyUsed),
		RemainingMonthly: remaining(t.monthlyLimit, t.monthlyUsed),
		Action:           string(t.action),
	}
}

// remaining returns tokens left under a limit (-1 if unlimited).
func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	if left := limit - used; left > 0 {
		return left
	}
	return 0
}

// publishGauges updates the remaining-budget gauges. Caller holds the lock.
func (t *Tracker) publishGauges() {
	if t.dailyLimit > 0 {
		metrics.BudgetTokensRemaining.WithLabelValues("daily").
			Set(float64(remaining(t.dailyLimit, t.dailyUsed)))
	}
	if t.monthlyLimit > 0 {
		metrics.BudgetTokensRemaining.WithLabelValues("monthly").
			Set(float64(remaining(t.monthlyLimit, t.monthlyUsed)))
	}
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := time.Now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.dailyUsed = 0
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthlyUsed = 0
		t.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
