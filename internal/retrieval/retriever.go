// Package retrieval defines the passage retrieval contract and the
// embedded FTS5-backed implementation.
package retrieval

import (
	"context"

	"github.com/rs/zerolog/log"

	gormdb "github.com/rescuelabs/protocold/internal/db/gorm"
	"github.com/rescuelabs/protocold/pkg/models"
)

// Retriever returns ranked protocol passages for a query, best match
// first, with similarity in [0,1]. agencyID 0 means an unscoped search.
// An empty result is valid and not an error.
type Retriever interface {
	Search(ctx context.Context, query string, agencyID int64, limit int, threshold float64) ([]models.Passage, error)
}

// FTSRetriever serves retrieval from the local protocol chunk index.
// A remote embedding backend plugs in behind the same interface.
type FTSRetriever struct {
	chunks *gormdb.ProtocolStore
}

// NewFTSRetriever creates a retriever over the protocol store.
func NewFTSRetriever(chunks *gormdb.ProtocolStore) *FTSRetriever {
	return &FTSRetriever{chunks: chunks}
}

// Search runs full-text search and drops passages below the threshold.
func (r *FTSRetriever) Search(ctx context.Context, query string, agencyID int64, limit int, threshold float64) ([]models.Passage, error) {
	passages, err := r.chunks.SearchChunksFTS(ctx, query, agencyID, limit)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Similarity >= threshold {
			filtered = append(filtered, p)
		}
	}

	log.Debug().
		Int("candidates", len(passages)).
		Int("passed", len(filtered)).
		Float64("threshold", threshold).
		Int64("agencyId", agencyID).
		Msg("Protocol retrieval complete")

	return filtered, nil
}
