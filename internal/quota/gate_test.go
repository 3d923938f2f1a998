package quota

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescuelabs/protocold/pkg/models"
)

// fakeCounterStore is an in-memory CounterStore for gate tests.
type fakeCounterStore struct {
	counts map[string]int64
	getErr error
	incErr error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: make(map[string]int64)}
}

func (f *fakeCounterStore) key(userID int64, dayKey string) string {
	return fmt.Sprintf("%d/%s", userID, dayKey)
}

func (f *fakeCounterStore) Get(_ context.Context, userID int64, dayKey string) (int64, error) {
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.counts[f.key(userID, dayKey)], nil
}

func (f *fakeCounterStore) Increment(_ context.Context, userID int64, dayKey string) error {
	if f.incErr != nil {
		return f.incErr
	}
	f.counts[f.key(userID, dayKey)]++
	return nil
}

func TestLimitFor(t *testing.T) {
	gate := NewGate(newFakeCounterStore(), Config{FreeDailyLimit: 10})

	assert.Equal(t, int64(10), gate.LimitFor(models.TierFree))
	assert.Equal(t, int64(0), gate.LimitFor(models.TierPro))
	assert.Equal(t, int64(0), gate.LimitFor(models.TierEnterprise))
}

func TestCanQueryFreeTier(t *testing.T) {
	ctx := context.Background()
	counters := newFakeCounterStore()
	gate := NewGate(counters, Config{FreeDailyLimit: 3})
	user := &models.User{ID: 1, Tier: models.TierFree}

	for i := 0; i < 3; i++ {
		allowed, err := gate.CanQuery(ctx, user)
		require.NoError(t, err)
		assert.True(t, allowed, "query %d should be allowed", i+1)
		require.NoError(t, gate.Increment(ctx, user))
	}

	allowed, err := gate.CanQuery(ctx, user)
	require.NoError(t, err)
	assert.False(t, allowed, "limit reached, should be denied")
}

func TestCanQueryPaidTierUnbounded(t *testing.T) {
	ctx := context.Background()
	counters := newFakeCounterStore()
	gate := NewGate(counters, Config{FreeDailyLimit: 1})
	user := &models.User{ID: 2, Tier: models.TierPro}

	for i := 0; i < 50; i++ {
		require.NoError(t, gate.Increment(ctx, user))
	}
	allowed, err := gate.CanQuery(ctx, user)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCanQueryCounterError(t *testing.T) {
	counters := newFakeCounterStore()
	counters.getErr = errors.New("counter backend down")
	gate := NewGate(counters, Config{})
	user := &models.User{ID: 3, Tier: models.TierFree}

	allowed, err := gate.CanQuery(context.Background(), user)
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestDayKeyTimezones(t *testing.T) {
	gate := NewGate(newFakeCounterStore(), Config{DefaultTimezone: "America/Chicago"})

	// 2026-06-02 03:30 UTC is still 2026-06-01 in US timezones.
	now := time.Date(2026, 6, 2, 3, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		userTz   string
		expected string
	}{
		{
			name:     "user timezone wins",
			userTz:   "America/Denver",
			expected: "2026-06-01",
		},
		{
			name:     "fallback to configured default",
			userTz:   "",
			expected: "2026-06-01",
		},
		{
			name:     "invalid user tz falls through to default",
			userTz:   "Not/AZone",
			expected: "2026-06-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{ID: 4, Timezone: tt.userTz}
			assert.Equal(t, tt.expected, gate.DayKey(user, now))
		})
	}

	// No user tz and no default: UTC.
	utcGate := NewGate(newFakeCounterStore(), Config{})
	assert.Equal(t, "2026-06-02", utcGate.DayKey(&models.User{ID: 5}, now))
}

func TestDayKeyResetsAtLocalMidnight(t *testing.T) {
	gate := NewGate(newFakeCounterStore(), Config{})
	user := &models.User{ID: 6, Timezone: "America/New_York"}

	before := time.Date(2026, 6, 2, 3, 30, 0, 0, time.UTC) // 23:30 EDT June 1
	after := time.Date(2026, 6, 2, 4, 30, 0, 0, time.UTC)  // 00:30 EDT June 2

	assert.NotEqual(t, gate.DayKey(user, before), gate.DayKey(user, after))
}

func TestState(t *testing.T) {
	ctx := context.Background()
	counters := newFakeCounterStore()
	gate := NewGate(counters, Config{FreeDailyLimit: 10})
	user := &models.User{ID: 7, Tier: models.TierFree}

	require.NoError(t, gate.Increment(ctx, user))
	require.NoError(t, gate.Increment(ctx, user))

	state, err := gate.State(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, state.Tier)
	assert.Equal(t, int64(2), state.QueriesUsedToday)
	assert.Equal(t, int64(10), state.DailyLimit)
}
