package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("MissingKey", func(t *testing.T) {
		val, err := store.Get(ctx, "missing")
		assert.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("SetGetCopies", func(t *testing.T) {
		payload := []byte(`["a"]`)
		require.NoError(t, store.Set(ctx, KeyBookings, payload))
		payload[0] = 'x'

		val, err := store.Get(ctx, KeyBookings)
		require.NoError(t, err)
		assert.Equal(t, `["a"]`, string(val))

		val[0] = 'y'
		again, _ := store.Get(ctx, KeyBookings)
		assert.Equal(t, `["a"]`, string(again))
	})

	t.Run("DeleteAndClear", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, KeyUsers, []byte(`[]`)))
		require.NoError(t, store.Set(ctx, KeyVehicles, []byte(`[]`)))

		require.NoError(t, store.Delete(ctx, KeyUsers))
		val, _ := store.Get(ctx, KeyUsers)
		assert.Nil(t, val)

		require.NoError(t, store.Clear(ctx))
		val, _ = store.Get(ctx, KeyVehicles)
		assert.Nil(t, val)
	})
}
