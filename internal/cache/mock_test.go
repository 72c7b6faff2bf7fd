package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRedisClientExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMockRedisClient("test:")
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, ETagKey("en_US"), "\"abc\"", time.Minute))
	require.NoError(t, store.Set(ctx, DirectoryKey("en_US"), "[]", 0))

	value, err := store.Get(ctx, ETagKey("en_US"))
	require.NoError(t, err)
	assert.Equal(t, "\"abc\"", value)

	now = now.Add(2 * time.Minute)
	value, err = store.Get(ctx, ETagKey("en_US"))
	require.NoError(t, err)
	assert.Empty(t, value, "expired entries read as missing")

	value, err = store.Get(ctx, DirectoryKey("en_US"))
	require.NoError(t, err)
	assert.Equal(t, "[]", value, "zero ttl never expires")

	require.NoError(t, store.Delete(ctx, DirectoryKey("en_US")))
	value, err = store.Get(ctx, DirectoryKey("en_US"))
	require.NoError(t, err)
	assert.Empty(t, value)
}
