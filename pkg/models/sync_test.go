package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
		ok       bool
	}{
		{
			name:     "rfc3339",
			input:    "2026-03-14T09:26:53Z",
			expected: 1773480413000,
			ok:       true,
		},
		{
			name:     "rfc3339 with millis",
			input:    "2026-03-14T09:26:53.535Z",
			expected: 1773480413535,
			ok:       true,
		},
		{
			name:     "rfc3339 with offset",
			input:    "2026-03-14T04:26:53-05:00",
			expected: 1773480413000,
			ok:       true,
		},
		{
			name:     "epoch millis",
			input:    "1773480413000",
			expected: 1773480413000,
			ok:       true,
		},
		{
			name:  "empty",
			input: "",
			ok:    false,
		},
		{
			name:  "garbage",
			input: "yesterday around noon",
			ok:    false,
		},
		{
			name:  "negative epoch",
			input: "-5",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := LocalQueryEntry{Timestamp: tt.input}
			got, ok := entry.ParseTimestamp()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}
