package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MaxQueryTextLen is the maximum accepted length of a submitted query.
const MaxQueryTextLen = 1000

// Passage is a retrieved protocol excerpt used as generation context.
type Passage struct {
	ID             int64   `json:"id"`
	ProtocolNumber string  `json:"protocol_number"`
	ProtocolTitle  string  `json:"protocol_title"`
	Section        string  `json:"section,omitempty"`
	Content        string  `json:"content"`
	Similarity     float64 `json:"similarity"`
}

// Ref returns the human-readable citation for the passage,
// e.g. "7.2 - Anaphylaxis".
func (p Passage) Ref() string {
	if p.ProtocolNumber == "" {
		return p.ProtocolTitle
	}
	if p.ProtocolTitle == "" {
		return p.ProtocolNumber
	}
	return p.ProtocolNumber + " - " + p.ProtocolTitle
}

// QueryRecord is one submitted question and its answer. Records are
// server-owned: IDs and CreatedAt are only ever assigned server-side.
type QueryRecord struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	AgencyID       int64           `db:"agency_id" json:"agency_id,omitempty"`
	QueryText      string          `db:"query_text" json:"query_text"`
	NormalizedText string          `db:"normalized_text" json:"-"`
	ResponseText   string          `db:"response_text" json:"response_text,omitempty"`
	ProtocolRefs   JSONStringArray `db:"protocol_refs" json:"protocol_refs"`
	SourceDeviceID string          `db:"source_device_id" json:"source_device_id,omitempty"`
	// ClientTimestamp is the client-observed event time in epoch millis.
	// Used only for sync de-duplication, never for ordering.
	ClientTimestamp int64  `db:"client_ts_epoch" json:"client_ts_epoch,omitempty"`
	CreatedAt       string `db:"created_at" json:"created_at"`
	CreatedAtEpoch  int64  `db:"created_at_epoch" json:"created_at_epoch"`
	ResponseTimeMs  int64  `db:"response_time_ms" json:"response_time_ms,omitempty"`
	ModelUsed       string `db:"model_used" json:"model_used,omitempty"`
}

// NormalizeQueryText canonicalizes query text for de-duplication:
// lower-cased with runs of whitespace collapsed to single spaces.
// The same rule is applied to live queries and synced entries so the
// two paths compare equal.
func NormalizeQueryText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NowStamps returns the paired RFC3339 string and epoch-millis forms
// of the current server time.
func NowStamps() (string, int64) {
	now := time.Now()
	return now.Format(time.RFC3339), now.UnixMilli()
}

// JSONStringArray is a []string stored as a JSON TEXT column.
type JSONStringArray []string

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONStringArray: %T", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(a))
}
