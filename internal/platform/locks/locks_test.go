package locks

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()
	key := "figure:" + uuid.NewString() + ":txt_only:svg"

	token, ok, err := l.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	require.NoError(t, l.Release(ctx, key, "someone-else"))
	_, ok, err = l.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release with a foreign token must not free the key")

	require.NoError(t, l.Release(ctx, key, token))
	token2, ok, err := l.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx, key, token2))
}

func TestMemoryLocker(t *testing.T) {
	exerciseLocker(t, NewMemoryLocker())
}

func TestMemoryLockerExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	l := &memoryLocker{held: map[string]memoryEntry{}, clock: func() time.Time { return now }}
	ctx := context.Background()

	_, ok, _ := l.TryAcquire(ctx, "k", time.Second)
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	_, ok, _ = l.TryAcquire(ctx, "k", time.Second)
	assert.True(t, ok, "expired lock should be reacquirable")
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis lock tests")
	}
	rdb, err := NewRedisClient(addr)
	require.NoError(t, err)
	defer rdb.Close()
	exerciseLocker(t, NewRedisLocker(logger.Nop(), rdb, "figuregen:test:"))
}
