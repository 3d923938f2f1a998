package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/rescuelabs/protocold/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist or
// belongs to another user.
var ErrNotFound = errors.New("record not found")

// HistoryStore provides query-record operations. The audit log is
// append-only: records are never updated, only added and (on explicit
// user request) deleted.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a new history store.
func NewHistoryStore(store *Store) *HistoryStore {
	return &HistoryStore{db: store.DB}
}

// Append writes a new query record and returns its server-assigned ID.
// CreatedAt and NormalizedText are filled by the BeforeCreate hook when
// the caller leaves them empty.
func (s *HistoryStore) Append(ctx context.Context, rec *models.QueryRecord) (int64, error) {
	dbRec := &QueryRecord{
		UserID:         rec.UserID,
		AgencyID:       sqlNullInt64(rec.AgencyID),
		QueryText:      rec.QueryText,
		NormalizedText: rec.NormalizedText,
		ResponseText:   sqlNullString(rec.ResponseText),
		ProtocolRefs:   rec.ProtocolRefs,
		SourceDeviceID: sqlNullString(rec.SourceDeviceID),
		ClientTsEpoch:  sqlNullInt64(rec.ClientTimestamp),
		CreatedAt:      rec.CreatedAt,
		CreatedAtEpoch: rec.CreatedAtEpoch,
		ResponseTimeMs: sqlNullInt64(rec.ResponseTimeMs),
		ModelUsed:      sqlNullString(rec.ModelUsed),
	}

	if err := s.db.WithContext(ctx).Create(dbRec).Error; err != nil {
		return 0, err
	}
	rec.ID = dbRec.ID
	rec.CreatedAt = dbRec.CreatedAt
	rec.CreatedAtEpoch = dbRec.CreatedAtEpoch
	rec.NormalizedText = dbRec.NormalizedText
	return dbRec.ID, nil
}

// ListByUser returns the user's history, newest first.
func (s *HistoryStore) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.QueryRecord, error) {
	var dbRecs []QueryRecord
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_epoch DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&dbRecs).Error; err != nil {
		return nil, err
	}
	return toModelRecords(dbRecs), nil
}

// FindByNormalizedText returns the user's records matching the
// normalized query text. Used for sync de-duplication; the timestamp
// tolerance comparison happens in the sync engine.
func (s *HistoryStore) FindByNormalizedText(ctx context.Context, userID int64, normalized string) ([]*models.QueryRecord, error) {
	var dbRecs []QueryRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND normalized_text = ?", userID, normalized).
		Find(&dbRecs).Error
	if err != nil {
		return nil, err
	}
	return toModelRecords(dbRecs), nil
}

// FindInWindow returns the user's records whose event time falls in
// [fromEpoch, toEpoch]. Event time is the client-observed timestamp for
// synced records and the server receipt time for live queries.
func (s *HistoryStore) FindInWindow(ctx context.Context, userID, fromEpoch, toEpoch int64) ([]*models.QueryRecord, error) {
	var dbRecs []QueryRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND COALESCE(client_ts_epoch, created_at_epoch) BETWEEN ? AND ?",
			userID, fromEpoch, toEpoch).
		Find(&dbRecs).Error
	if err != nil {
		return nil, err
	}
	return toModelRecords(dbRecs), nil
}

// DeleteEntry deletes a single record owned by the user. Deleting a
// nonexistent or foreign record returns ErrNotFound so clients can
// detect stale local references.
func (s *HistoryStore) DeleteEntry(ctx context.Context, userID, entryID int64) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		Delete(&QueryRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearHistory deletes all of the user's records and returns the count.
func (s *HistoryStore) ClearHistory(ctx context.Context, userID int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&QueryRecord{})
	return result.RowsAffected, result.Error
}

// CountByUser returns the number of records for a user.
func (s *HistoryStore) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&QueryRecord{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// toModelRecord converts a GORM QueryRecord to pkg/models.QueryRecord.
func toModelRecord(r *QueryRecord) *models.QueryRecord {
	return &models.QueryRecord{
		ID:              r.ID,
		UserID:          r.UserID,
		AgencyID:        r.AgencyID.Int64,
		QueryText:       r.QueryText,
		NormalizedText:  r.NormalizedText,
		ResponseText:    r.ResponseText.String,
		ProtocolRefs:    r.ProtocolRefs,
		SourceDeviceID:  r.SourceDeviceID.String,
		ClientTimestamp: r.ClientTsEpoch.Int64,
		CreatedAt:       r.CreatedAt,
		CreatedAtEpoch:  r.CreatedAtEpoch,
		ResponseTimeMs:  r.ResponseTimeMs.Int64,
		ModelUsed:       r.ModelUsed.String,
	}
}

// toModelRecords converts a slice of GORM QueryRecord to pkg/models.
func toModelRecords(recs []QueryRecord) []*models.QueryRecord {
	result := make([]*models.QueryRecord, len(recs))
	for i := range recs {
		result[i] = toModelRecord(&recs[i])
	}
	return result
}
