package preference

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, ttl), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	pref := &RecipientPreference{
		RecipientID:          "rec-1",
		EmailEnabled:         true,
		AppointmentReminders: true,
		UpdatedAt:            time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.Set(ctx, pref))

	got, err := cache.Get(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pref, got)
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	got, err := cache.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_Del(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, Defaults("rec-1")))
	require.NoError(t, cache.Del(ctx, "rec-1"))

	got, err := cache.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_EntryExpires(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, Defaults("rec-1")))
	mr.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_SetUsesConfiguredTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, 5*time.Minute)

	pref := Defaults("rec-1")
	raw, err := json.Marshal(pref)
	require.NoError(t, err)
	mock.ExpectSet(cacheKeyPrefix+"rec-1", raw, 5*time.Minute).SetVal("OK")

	require.NoError(t, cache.Set(context.Background(), pref))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)

	require.NoError(t, mr.Set(cacheKeyPrefix+"rec-1", "{not json"))

	got, err := cache.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists(cacheKeyPrefix+"rec-1"), "corrupt entry is dropped")
}
