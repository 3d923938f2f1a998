package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTerms(t *testing.T) {
	terms := ExtractTerms("What is the dose of epinephrine for anaphylaxis?")

	assert.True(t, terms["dose"])
	assert.True(t, terms["epinephrine"])
	assert.True(t, terms["anaphylaxis"])
	// Stop words and short tokens are excluded
	assert.False(t, terms["the"])
	assert.False(t, terms["is"])
	assert.False(t, terms["of"])
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{
			name:     "identical",
			a:        "chest pain protocol",
			b:        "chest pain protocol",
			expected: 1.0,
		},
		{
			name:     "disjoint",
			a:        "chest pain",
			b:        "pediatric seizure",
			expected: 0.0,
		},
		{
			name:     "both empty",
			a:        "",
			b:        "",
			expected: 1.0,
		},
		{
			name:     "one empty",
			a:        "chest pain",
			b:        "",
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TextSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestJaccardSimilarityPartialOverlap(t *testing.T) {
	// {chest, pain, adult} vs {chest, pain, pediatric}: 2 shared of 4 total.
	score := TextSimilarity("adult chest pain", "pediatric chest pain")
	assert.InDelta(t, 0.5, score, 1e-9)
}
