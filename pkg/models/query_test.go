package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQueryText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already normalized",
			input:    "pediatric epinephrine dose",
			expected: "pediatric epinephrine dose",
		},
		{
			name:     "mixed case",
			input:    "Chest Pain",
			expected: "chest pain",
		},
		{
			name:     "extra whitespace",
			input:    "  chest   pain \t protocol ",
			expected: "chest pain protocol",
		},
		{
			name:     "newlines collapse",
			input:    "cardiac\narrest\n\nadult",
			expected: "cardiac arrest adult",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    "   \n\t ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeQueryText(tt.input))
		})
	}
}

func TestPassageRef(t *testing.T) {
	tests := []struct {
		name     string
		passage  Passage
		expected string
	}{
		{
			name:     "number and title",
			passage:  Passage{ProtocolNumber: "7.2", ProtocolTitle: "Anaphylaxis"},
			expected: "7.2 - Anaphylaxis",
		},
		{
			name:     "title only",
			passage:  Passage{ProtocolTitle: "Anaphylaxis"},
			expected: "Anaphylaxis",
		},
		{
			name:     "number only",
			passage:  Passage{ProtocolNumber: "7.2"},
			expected: "7.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.passage.Ref())
		})
	}
}

func TestJSONStringArrayRoundTrip(t *testing.T) {
	refs := JSONStringArray{"7.2 - Anaphylaxis", "2.1 - Chest Pain"}

	value, err := refs.Value()
	require.NoError(t, err)
	assert.Equal(t, `["7.2 - Anaphylaxis","2.1 - Chest Pain"]`, value)

	var scanned JSONStringArray
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, refs, scanned)
}

func TestJSONStringArrayNil(t *testing.T) {
	var refs JSONStringArray

	value, err := refs.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)

	var scanned JSONStringArray
	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)

	assert.Error(t, scanned.Scan(42))
}
