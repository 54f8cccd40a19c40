package database

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCache_GetOrInsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := withTx(ctx, s.DB(), func(tx *sqlx.Tx) error {
		cache := newTagCache(tx)

		first, inserted, err := cache.Resolve(ctx, "beach")
		require.NoError(t, err)
		assert.True(t, inserted)

		again, inserted, err := cache.Resolve(ctx, "beach")
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, first, again)

		other, err := cache.GetOrInsert(ctx, "trip")
		require.NoError(t, err)
		assert.NotEqual(t, first, other)
		assert.Equal(t, 2, cache.Len())
		return nil
	})
	require.NoError(t, err)

	// A fresh cache finds the committed rows instead of inserting.
	err = withTx(ctx, s.DB(), func(tx *sqlx.Tx) error {
		_, inserted, err := newTagCache(tx).Resolve(ctx, "beach")
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	})
	require.NoError(t, err)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Tags)
}
