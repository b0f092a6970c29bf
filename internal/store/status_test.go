package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusStore interface {
	Set(ctx context.Context, jobID string, st Status) error
	SetFile(ctx context.Context, jobID string, index int, name, state string) error
	Get(ctx context.Context, jobID string) (Status, bool, error)
}

func stores(t *testing.T) map[string]statusStore {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]statusStore{
		"redis":  NewRedisStatus(rdb, time.Hour),
		"memory": NewMemoryStatus(time.Hour),
	}
}

func TestStatusRoundTripWithFiles(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

			err := s.Set(ctx, "job1", Status{
				Status:   "processing",
				Progress: 10,
				Message:  "merging 2 files",
				Start:    &start,
				Metadata: map[string]interface{}{"tool": "merge"},
				Files: []FileStatus{
					{Index: 1, Name: "b.pdf", State: "ready"},
					{Index: 0, Name: "a.pdf", State: "ready"},
				},
			})
			require.NoError(t, err)
			require.NoError(t, s.SetFile(ctx, "job1", 0, "a.pdf", "completed"))

			st, ok, err := s.Get(ctx, "job1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "processing", st.Status)
			assert.Equal(t, 10, st.Progress)
			assert.Equal(t, "merging 2 files", st.Message)
			require.NotNil(t, st.Start)
			assert.True(t, start.Equal(*st.Start))
			assert.Equal(t, "merge", st.Metadata["tool"])
			assert.Equal(t, []FileStatus{
				{Index: 0, Name: "a.pdf", State: "completed"},
				{Index: 1, Name: "b.pdf", State: "ready"},
			}, st.Files)

			// A later overall update keeps per-file states.
			require.NoError(t, s.Set(ctx, "job1", Status{Status: "success", Progress: 100}))
			st, _, err = s.Get(ctx, "job1")
			require.NoError(t, err)
			assert.Equal(t, "success", st.Status)
			assert.Len(t, st.Files, 2)
		})
	}
}

func TestStatusUnknownJob(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(context.Background(), "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisStatusExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStatus(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "j", Status{Status: "queued"}))
	assert.Equal(t, time.Minute, mr.TTL("job:j:status"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, "j")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStatusSweep(t *testing.T) {
	s := NewMemoryStatus(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "old", Status{Status: "success"}))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.Set(ctx, "new", Status{Status: "processing"}))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	_, ok, _ := s.Get(ctx, "old")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "new")
	assert.True(t, ok)
}
