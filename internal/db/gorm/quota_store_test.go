//go:build fts5

package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaStoreGetMissingIsZero(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	qs := NewQuotaStore(store)

	used, err := qs.Get(context.Background(), 1, "2026-03-14")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestQuotaStoreIncrement(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	qs := NewQuotaStore(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, qs.Increment(ctx, 1, "2026-03-14"))
	}

	used, err := qs.Get(ctx, 1, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(3), used)
}

func TestQuotaStoreKeysAreIndependent(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	qs := NewQuotaStore(store)
	ctx := context.Background()

	require.NoError(t, qs.Increment(ctx, 1, "2026-03-14"))
	require.NoError(t, qs.Increment(ctx, 1, "2026-03-15"))
	require.NoError(t, qs.Increment(ctx, 2, "2026-03-14"))

	used, err := qs.Get(ctx, 1, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)

	used, err = qs.Get(ctx, 1, "2026-03-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)

	used, err = qs.Get(ctx, 2, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)
}
