package migration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medinor/dashboard/model"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:migration:"), mr
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestRedisStore_keyCarriesExpiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	snap := expiring(testSnapshot("m-1", "alice"), time.Now().Add(time.Hour))

	require.NoError(t, s.Create(ctx, snap))

	ttl := mr.TTL("test:migration:m-1")
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	mr.FastForward(2 * time.Hour)
	_, err := s.Get(ctx, "alice", "m-1")
	assert.Equal(t, model.ErrNotFound, model.CodeOf(err))

	expired, err := s.FindExpired(ctx, time.Now().Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestRedisStore_countIgnoresOtherKeys(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("other:key", "x"))
	require.NoError(t, s.Create(ctx, testSnapshot("m-1", "alice")))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisStore_unreachable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	assert.Error(t, s.HealthCheck(context.Background()))
}
