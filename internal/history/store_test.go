package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stressor/internal/performance/report"
	"github.com/wesleyorama2/stressor/internal/performance/stats"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func runReport(id, target string, startedAt time.Time) *report.RunReport {
	return &report.RunReport{
		ID:          id,
		Target:      target,
		Endpoints:   []string{"/"},
		Concurrency: 4,
		StartedAt:   startedAt,
		Elapsed:     1500 * time.Millisecond,
		Total:       120,
		Success:     118,
		Failure:     2,
		SuccessRate: 98.33,
		Throughput:  80,
		Latency:     stats.Summary{Available: true, Count: 118, P95: 42.5},
		StatusCodes: map[int]int64{200: 118},
		ErrorKinds:  map[string]int64{"ETIMEDOUT": 2},
		Passed:      true,
		Rating:      report.Rating{Stars: 4, Label: "Good", Notes: []string{}},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := runReport("run-1", "http://a", time.Now())
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, r.Target, got.Target)
	assert.Equal(t, r.Total, got.Total)
	assert.Equal(t, int64(2), got.ErrorKinds["ETIMEDOUT"])
	assert.Equal(t, 42.5, got.Latency.P95)
	assert.Equal(t, 4, got.Rating.Stars)
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "nope"), ErrNotFound)
}

func TestSaveRejectsInvalid(t *testing.T) {
	s := openStore(t)

	assert.Error(t, s.Save(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), &report.RunReport{}))
}

func TestList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Save(ctx, runReport("a", "http://a", base)))
	require.NoError(t, s.Save(ctx, runReport("b", "http://b", base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, runReport("c", "http://a", base.Add(2*time.Minute))))

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	first := all[2]
	assert.Equal(t, "http://a", first.Target)
	assert.True(t, first.StartedAt.Equal(base))
	assert.Equal(t, 1500*time.Millisecond, first.Elapsed)
	assert.Equal(t, 4, first.Concurrency)
	assert.Equal(t, int64(120), first.Total)
	assert.Equal(t, 42.5, first.P95)
	assert.True(t, first.Passed)
	assert.False(t, first.Aborted)

	limited, err := s.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	onlyA, err := s.List(ctx, "http://a", 0)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	for _, e := range onlyA {
		assert.Equal(t, "http://a", e.Target)
	}
}

func TestSaveReplacesAndDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := runReport("x", "http://a", time.Now())
	require.NoError(t, s.Save(ctx, r))
	r.Total = 7
	require.NoError(t, s.Save(ctx, r))

	entries, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].Total)

	require.NoError(t, s.Delete(ctx, "x"))
	entries, err = s.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
