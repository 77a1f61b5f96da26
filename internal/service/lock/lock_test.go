package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesConcurrentHolders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLocalLocker(time.Hour)

	token, ok, err := l.Acquire(ctx, "daily:2024-02-29")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "daily:2024-02-29")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = l.Acquire(ctx, "daily:2024-03-01")
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, "daily:2024-02-29", "someone-else"))
	_, ok, _ = l.Acquire(ctx, "daily:2024-02-29")
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "daily:2024-02-29", token))
	_, ok, _ = l.Acquire(ctx, "daily:2024-02-29")
	assert.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLocalLocker(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, ok, _ := l.Acquire(ctx, "monthly:02")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.Acquire(ctx, "monthly:02")
	assert.True(t, ok)
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cdr:workflow:daily:2024-02-29", Key("cdr:workflow", "daily:2024-02-29"))
	assert.Equal(t, "daily", Key("", "daily"))
}
