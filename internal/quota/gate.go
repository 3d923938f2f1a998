// Package quota enforces the per-user, per-day query allowance.
package quota

import (
	"context"
	"time"

	"github.com/rescuelabs/protocold/pkg/models"
)

// DefaultFreeDailyLimit is the free-tier ceiling used when the
// configuration does not override it.
const DefaultFreeDailyLimit = 10

// CounterStore is the shared usage counter keyed by (user, day).
// Implementations must be safe for use from multiple server instances;
// the gate never memoizes counts in process.
type CounterStore interface {
	Get(ctx context.Context, userID int64, dayKey string) (int64, error)
	Increment(ctx context.Context, userID int64, dayKey string) error
}

// Config holds quota gate settings.
type Config struct {
	FreeDailyLimit  int64  // 0 means DefaultFreeDailyLimit
	DefaultTimezone string // IANA name used when the user has none
}

// Gate checks and records query usage. The check-then-increment pair is
// deliberately not serialized: two in-flight requests may both pass the
// check, which is an accepted soft limit for a per-day counter.
type Gate struct {
	counters CounterStore
	cfg      Config
}

// NewGate creates a quota gate over the given counter store.
func NewGate(counters CounterStore, cfg Config) *Gate {
	if cfg.FreeDailyLimit <= 0 {
		cfg.FreeDailyLimit = DefaultFreeDailyLimit
	}
	return &Gate{counters: counters, cfg: cfg}
}

// LimitFor returns the daily limit for a tier. Zero means unbounded.
func (g *Gate) LimitFor(tier models.Tier) int64 {
	if tier == models.TierFree {
		return g.cfg.FreeDailyLimit
	}
	return 0
}

// DayKey returns the calendar day (YYYY-MM-DD) for the user's reference
// timezone at the given instant. Falls back to the configured default
// timezone, then UTC.
func (g *Gate) DayKey(user *models.User, now time.Time) string {
	loc := time.UTC
	for _, name := range []string{user.Timezone, g.cfg.DefaultTimezone} {
		if name == "" {
			continue
		}
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
			break
		}
	}
	return now.In(loc).Format("2006-01-02")
}

// CanQuery reports whether the user has allowance left today.
func (g *Gate) CanQuery(ctx context.Context, user *models.User) (bool, error) {
	limit := g.LimitFor(user.Tier)
	if limit == 0 {
		return true, nil
	}
	used, err := g.counters.Get(ctx, user.ID, g.DayKey(user, time.Now()))
	if err != nil {
		return false, err
	}
	return used < limit, nil
}

// Increment records one successful query against today's counter.
// Callers must invoke this only after the query has fully succeeded.
func (g *Gate) Increment(ctx context.Context, user *models.User) error {
	return g.counters.Increment(ctx, user.ID, g.DayKey(user, time.Now()))
}

// State returns a snapshot of the user's allowance for status responses.
func (g *Gate) State(ctx context.Context, user *models.User) (*models.QuotaState, error) {
	used, err := g.counters.Get(ctx, user.ID, g.DayKey(user, time.Now()))
	if err != nil {
		return nil, err
	}
	return &models.QuotaState{
		Tier:             user.Tier,
		QueriesUsedToday: used,
		DailyLimit:       g.LimitFor(user.Tier),
	}, nil
}
