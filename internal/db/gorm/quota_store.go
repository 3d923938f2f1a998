package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaStore is a relational counter store for per-user per-day usage.
// Increments are atomic upserts keyed by (user_id, day_key), so multiple
// server instances sharing the database converge on the same count.
type QuotaStore struct {
	db *gorm.DB
}

// NewQuotaStore creates a new quota store.
func NewQuotaStore(store *Store) *QuotaStore {
	return &QuotaStore{db: store.DB}
}

// Get returns the current count for the key, zero if absent.
func (s *QuotaStore) Get(ctx context.Context, userID int64, dayKey string) (int64, error) {
	var counter QuotaCounter
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND day_key = ?", userID, dayKey).
		First(&counter).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.Used, nil
}

// Increment bumps the counter for the key by one, creating it at 1 on
// first use for the day.
func (s *QuotaStore) Increment(ctx context.Context, userID int64, dayKey string) error {
	now := time.Now().Format(time.RFC3339)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "day_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"used":       gorm.Expr("used + 1"),
				"updated_at": now,
			}),
		}).
		Create(&QuotaCounter{
			UserID:    userID,
			DayKey:    dayKey,
			Used:      1,
			UpdatedAt: now,
		}).Error
}
