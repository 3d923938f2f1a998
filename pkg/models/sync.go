package models

import (
	"strconv"
	"time"
)

// LocalQueryEntry is a client-observed query, possibly collected offline.
// Timestamps come from untrusted client clocks and are used only for
// de-duplication, never for canonical ordering.
type LocalQueryEntry struct {
	QueryText string `json:"query_text"`
	CountyID  int64  `json:"county_id,omitempty"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"device_id"`
}

// ParseTimestamp coerces the client timestamp to epoch millis.
// Accepted forms: RFC3339 (with or without sub-second precision) and
// raw epoch milliseconds. Returns false if the value is unparseable.
func (e LocalQueryEntry) ParseTimestamp() (int64, bool) {
	if e.Timestamp == "" {
		return 0, false
	}
	if t, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		return t.UnixMilli(), true
	}
	if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		return t.UnixMilli(), true
	}
	if ms, err := strconv.ParseInt(e.Timestamp, 10, 64); err == nil && ms > 0 {
		return ms, true
	}
	return 0, false
}

// MergedHistoryView is the result of a sync call: how many entries were
// newly admitted plus the authoritative post-merge history, newest first,
// for the client to replace its local cache with.
type MergedHistoryView struct {
	Merged        int            `json:"merged"`
	Dropped       int            `json:"dropped"`
	ServerHistory []*QueryRecord `json:"server_history"`
}
