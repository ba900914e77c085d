package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
)

func TestPayloadRoundTripKeepsVariant(t *testing.T) {
	hid := uuid.New()
	payloads := []Payload{
		Registration{},
		TeamCreate{HackathonID: hid, Name: "Rocket", Role: models.RoleDesigner},
		AdminStage{HackathonID: hid, Number: 2, Task: "Build an MVP"},
	}
	for _, p := range payloads {
		b, err := EncodePayload(p)
		require.NoError(t, err)
		got, err := DecodePayload(b)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestDecodeUnknownFlow(t *testing.T) {
	_, err := DecodePayload([]byte(`{"flow":"unknown_flow","data":{}}`))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour).WithClock(func() time.Time { return now })

	require.NoError(t, s.Put(ctx, State{TelegramID: 7, Step: "first_name", Data: Registration{}}))
	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, FlowRegistration, got.Flow())

	now = now.Add(2 * time.Hour)
	got, err = s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreReap(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(0).WithClock(func() time.Time { return now })
	require.NoError(t, s.Put(ctx, State{TelegramID: 1, Step: "a", Data: Registration{}}))
	now = now.Add(time.Hour)
	require.NoError(t, s.Put(ctx, State{TelegramID: 2, Step: "b", Data: Registration{}}))

	n, err := s.Reap(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, _ := s.Get(ctx, 2)
	assert.NotNil(t, got)
}

func setupRedis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisStore(rdb, "test", ttl, logger.Nop())
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedis(t, time.Hour)

	st := State{TelegramID: 99, Step: "role", Data: TeamJoin{Code: "123456"}}
	require.NoError(t, s.Put(ctx, st))
	assert.True(t, mr.Exists("test:state:99"))

	got, err := s.Get(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "role", got.Step)
	assert.Equal(t, TeamJoin{Code: "123456"}, got.Data)

	require.NoError(t, s.Delete(ctx, 99))
	got, err = s.Get(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedis(t, 30*time.Minute)

	require.NoError(t, s.Put(ctx, State{TelegramID: 5, Step: "text", Data: AdminBroadcast{}}))
	assert.Equal(t, 30*time.Minute, mr.TTL("test:state:5"))

	mr.FastForward(31 * time.Minute)
	got, err := s.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreUnreadableRecord(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedis(t, time.Hour)

	require.NoError(t, mr.Set("test:state:7", `{"step":"x","payload":{"flow":"old_flow","data":{}}}`))
	_, err := s.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, mr.Set("test:state:8", `not json`))
	_, err = s.Get(ctx, 8)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "invalid://url")
	assert.Error(t, err)
}
