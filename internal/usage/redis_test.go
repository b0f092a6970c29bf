package usage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCounter(rdb), mr
}

func TestRedisCounterIncrAndExpire(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCounter(t)

	n, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := int64(1); i <= 3; i++ {
		n, err = c.Incr(ctx, "k", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	assert.Equal(t, time.Hour, mr.TTL("k"))

	mr.FastForward(time.Hour + time.Second)
	n, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedisCounterRaiseOnlyIncreases(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCounter(t)

	require.NoError(t, c.Raise(ctx, "k", 4, time.Minute))
	n, _ := c.Get(ctx, "k")
	assert.Equal(t, int64(4), n)

	require.NoError(t, c.Raise(ctx, "k", 2, time.Minute))
	n, _ = c.Get(ctx, "k")
	assert.Equal(t, int64(4), n)
}

func TestQuotaLedgerSharedAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRedisCounter(t)
	now := fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	a := NewQuotaLedger(Options{Remote: remote, Quota: 2, Now: now})
	b := NewQuotaLedger(Options{Remote: remote, Quota: 2, Now: now})
	caller := Caller{ID: "anon:shared"}

	_, err := a.Record(ctx, ToolSplit, caller)
	require.NoError(t, err)
	_, err = b.Record(ctx, ToolSplit, caller)
	require.NoError(t, err)

	d, err := a.Check(ctx, ToolSplit, caller)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(2), d.Used)
}

func TestQuotaLedgerSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	remote, mr := newRedisCounter(t)
	l := NewQuotaLedger(Options{Remote: remote, Quota: 2})
	caller := Caller{ID: "user:o"}

	_, err := l.Record(ctx, ToolImages, caller)
	require.NoError(t, err)

	mr.Close()
	d, err := l.Check(ctx, ToolImages, caller)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Used)

	n, err := l.Record(ctx, ToolImages, caller)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
