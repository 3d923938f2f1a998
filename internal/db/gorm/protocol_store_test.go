//go:build fts5

package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChunks(t *testing.T, ps *ProtocolStore) {
	t.Helper()
	ctx := context.Background()

	_, err := ps.InsertChunks(ctx, 7, []ChunkInput{
		{
			ProtocolNumber: "7.2",
			ProtocolTitle:  "Anaphylaxis",
			Section:        "ADULT DOSING",
			Content:        "Epinephrine 0.3 mg IM lateral thigh, repeat every 5 minutes as needed.",
		},
		{
			ProtocolNumber: "7.2",
			ProtocolTitle:  "Anaphylaxis",
			Section:        "Pediatric Dosing",
			Content:        "Epinephrine 0.01 mg/kg IM, maximum single dose 0.3 mg.",
		},
		{
			ProtocolNumber: "2.1",
			ProtocolTitle:  "Chest Pain",
			Content:        "Aspirin 324 mg PO chewed unless allergy. Obtain 12-lead ECG.",
		},
	})
	require.NoError(t, err)

	// Global chunk, visible to every tenant.
	_, err = ps.InsertChunks(ctx, 0, []ChunkInput{
		{
			ProtocolNumber: "1.1",
			ProtocolTitle:  "General Assessment",
			Content:        "Scene safety, airway, breathing, circulation. Full vitals before transport.",
		},
	})
	require.NoError(t, err)
}

func TestProtocolStoreInsertAndCount(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ps := NewProtocolStore(store)
	seedChunks(t, ps)

	count, err := ps.CountChunks(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	// An unrelated agency sees only the global chunk.
	count, err = ps.CountChunks(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProtocolStoreSearchFTS(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ps := NewProtocolStore(store)
	seedChunks(t, ps)

	passages, err := ps.SearchChunksFTS(context.Background(), "epinephrine anaphylaxis dose", 7, 10)
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	assert.Equal(t, "7.2", passages[0].ProtocolNumber)
	for _, p := range passages {
		assert.Greater(t, p.Similarity, 0.0)
		assert.Less(t, p.Similarity, 1.0)
	}
}

func TestProtocolStoreSearchScoping(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ps := NewProtocolStore(store)
	seedChunks(t, ps)
	ctx := context.Background()

	// Agency 99 has no chunks of its own but still sees global ones.
	passages, err := ps.SearchChunksFTS(ctx, "airway breathing circulation", 99, 10)
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	for _, p := range passages {
		assert.Equal(t, "1.1", p.ProtocolNumber)
	}

	// Agency 99 must not see agency 7's protocols.
	passages, err = ps.SearchChunksFTS(ctx, "epinephrine anaphylaxis", 99, 10)
	require.NoError(t, err)
	assert.Empty(t, passages)

	// agencyID 0 searches unscoped.
	passages, err = ps.SearchChunksFTS(ctx, "epinephrine anaphylaxis", 0, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, passages)
}

func TestProtocolStoreSearchNoKeywords(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ps := NewProtocolStore(store)

	passages, err := ps.SearchChunksFTS(context.Background(), "is of to", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestExtractKeywords(t *testing.T) {
	keywords := extractKeywords("What is the epi dose for anaphylaxis?")
	assert.Equal(t, []string{"what", "epi", "dose", "anaphylaxis"}, keywords)
}
