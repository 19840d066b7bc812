package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*OfflinePushQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewOfflinePushQueue(client), mr
}

func TestOfflinePushQueue_DrainReturnsOldestFirstAndClears(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, 42, []byte("first")))
	require.NoError(t, q.Push(ctx, 42, []byte("second")))

	assert.True(t, mr.Exists(offlinePushKey(42)))
	ttl := mr.TTL(offlinePushKey(42))
	assert.Equal(t, OfflinePushTTL, ttl)

	got, err := q.Drain(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, got)

	count, err := q.Count(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOfflinePushQueue_TrimsToMax(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < OfflinePushMax+5; i++ {
		require.NoError(t, q.Push(ctx, 1, []byte(fmt.Sprintf("p%d", i))))
	}

	count, err := q.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(OfflinePushMax), count)
}

func TestHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.NoError(t, HealthCheck(context.Background(), client))
	assert.Error(t, HealthCheck(context.Background(), nil))
}
