package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/rescuelabs/protocold/pkg/models"
)

// GORM models. JSONStringArray comes from pkg/models and already
// implements sql.Scanner and driver.Valuer.

// User represents an application user.
type User struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Email     string         `gorm:"uniqueIndex;not null"`
	Tier      models.Tier    `gorm:"type:text;check:tier IN ('free', 'pro', 'enterprise');default:'free';not null"`
	AgencyID  sql.NullInt64  `gorm:"index"`
	Timezone  sql.NullString `gorm:"type:text"`
	CreatedAt string         `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// BeforeCreate hook to ensure defaults are set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if u.Tier == "" {
		u.Tier = models.TierFree
	}
	return nil
}

// Agency represents a tenant whose protocols are searched.
type Agency struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Name      string         `gorm:"uniqueIndex;not null"`
	State     sql.NullString `gorm:"type:text"`
	Timezone  sql.NullString `gorm:"type:text"`
	CreatedAt string         `gorm:"not null"`
}

func (Agency) TableName() string { return "agencies" }

// BeforeCreate hook to ensure timestamps are set.
func (a *Agency) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// QueryRecord is the append-only audit record of one submitted query.
type QueryRecord struct {
	ID             int64                  `gorm:"primaryKey;autoIncrement"`
	UserID         int64                  `gorm:"index:idx_query_records_user;index:idx_query_records_user_created,priority:1;not null"`
	AgencyID       sql.NullInt64          `gorm:"index"`
	QueryText      string                 `gorm:"type:text;not null"`
	NormalizedText string                 `gorm:"type:text;index:idx_query_records_norm;not null"`
	ResponseText   sql.NullString         `gorm:"type:text"`
	ProtocolRefs   models.JSONStringArray `gorm:"type:text"` // JSON array
	SourceDeviceID sql.NullString         `gorm:"type:text"`
	ClientTsEpoch  sql.NullInt64
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_query_records_user_created,priority:2,sort:desc;not null"`
	ResponseTimeMs sql.NullInt64
	ModelUsed      sql.NullString `gorm:"type:text"`
}

func (QueryRecord) TableName() string { return "query_records" }

// BeforeCreate hook to ensure timestamps and normalization are set.
func (r *QueryRecord) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if r.NormalizedText == "" {
		r.NormalizedText = models.NormalizeQueryText(r.QueryText)
	}
	return nil
}

// QuotaCounter tracks per-user per-day query usage.
// DayKey is the calendar day in the user's reference timezone.
type QuotaCounter struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"uniqueIndex:idx_quota_user_day,priority:1;not null"`
	DayKey    string `gorm:"uniqueIndex:idx_quota_user_day,priority:2;not null"` // YYYY-MM-DD
	Used      int64  `gorm:"default:0;not null"`
	UpdatedAt string `gorm:"not null"`
}

func (QuotaCounter) TableName() string { return "quota_counters" }

// ProtocolChunk is one retrievable passage of an agency protocol document.
type ProtocolChunk struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	AgencyID       sql.NullInt64  `gorm:"index:idx_protocol_chunks_agency"`
	ProtocolNumber string         `gorm:"type:text;index;not null"`
	ProtocolTitle  string         `gorm:"type:text;not null"`
	Section        sql.NullString `gorm:"type:text"`
	Content        string         `gorm:"type:text;not null"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"not null"`
}

func (ProtocolChunk) TableName() string { return "protocol_chunks" }

// BeforeCreate hook to ensure timestamps are set.
func (c *ProtocolChunk) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}
