package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerCounterSkipsRemoteWhileOpen(t *testing.T) {
	ctx := context.Background()
	remote := &failingCounter{}
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	b := NewBreakerCounter(remote, 5*time.Second, 20*time.Second)
	b.now = func() time.Time { return now }

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, errDown)
	assert.True(t, b.IsOpen())

	_, err = b.Incr(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 1, remote.calls)

	// Cooldown elapsed: one probe goes through, fails, and doubles the cooldown.
	now = now.Add(6 * time.Second)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 2, remote.calls)

	now = now.Add(6 * time.Second)
	assert.ErrorIs(t, b.Raise(ctx, "k", 1, time.Minute), ErrBreakerOpen)

	now = now.Add(5 * time.Second)
	assert.False(t, b.IsOpen())
}

func TestBreakerCounterClosesOnSuccess(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCounter()
	b := NewBreakerCounter(mem, time.Second, time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.observe(errDown)
	require.True(t, b.IsOpen())

	now = now.Add(2 * time.Second)
	n, err := b.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, b.IsOpen())
	assert.Equal(t, stateClosed, b.state)
	assert.Zero(t, b.failures)
}

func TestQuotaLedgerWithBreakerDegrades(t *testing.T) {
	ctx := context.Background()
	remote := &failingCounter{}
	l := NewQuotaLedger(Options{Remote: NewBreakerCounter(remote, time.Minute, time.Minute), Quota: 5})
	caller := Caller{ID: "anon:b"}

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, ToolMerge, caller)
		require.NoError(t, err)
		_, err = l.Record(ctx, ToolMerge, caller)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, remote.calls, "remote is consulted once, then skipped")

	d, err := l.Check(ctx, ToolMerge, caller)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Used)
}
