// Package models contains domain models for protocold.
package models

// Tier is a subscription level controlling quota and generation routing.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Paid reports whether the tier is entitled to paid-only features
// such as cross-device history sync.
func (t Tier) Paid() bool {
	return t == TierPro || t == TierEnterprise
}

// User represents an application user as seen by the query core.
type User struct {
	ID        int64  `db:"id" json:"id"`
	Email     string `db:"email" json:"email"`
	Tier      Tier   `db:"tier" json:"tier"`
	AgencyID  int64  `db:"agency_id" json:"agency_id,omitempty"`
	Timezone  string `db:"timezone" json:"timezone,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// Agency represents a tenant (jurisdiction) whose protocols are searched.
type Agency struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	State     string `db:"state" json:"state,omitempty"`
	Timezone  string `db:"timezone" json:"timezone,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// QuotaState is a read-only snapshot of a user's daily allowance.
type QuotaState struct {
	Tier             Tier  `json:"tier"`
	QueriesUsedToday int64 `json:"queries_used_today"`
	DailyLimit       int64 `json:"daily_limit"` // 0 means unbounded
}
