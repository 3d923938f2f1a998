// Package generation defines the answer generation contract and the
// tiered HTTP gateway client.
package generation

import (
	"context"

	"github.com/rescuelabs/protocold/pkg/models"
)

// Request carries everything the generation backend needs: the question,
// the retrieved context, the routing tier, and the tenant name for
// jurisdiction-specific phrasing.
type Request struct {
	Query      string
	Passages   []models.Passage
	Tier       models.Tier
	AgencyName string
}

// Result is the generated answer with the model actually used and
// token accounting.
type Result struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Generator produces an answer from a query and its retrieval context.
// Tier-specific model choice is encapsulated here; callers pass the tier
// through without branching on it.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
