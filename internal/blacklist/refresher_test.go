package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/supplier-verify/internal/metrics"
)

type stubLoader struct {
	snap  Snapshot
	err   error
	calls int
}

func (s *stubLoader) Fetch(context.Context) (Snapshot, error) {
	s.calls++
	return s.snap, s.err
}

func TestMonthlySchedule(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)
	thisMonth := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, MonthlySchedule(now, nil))
	assert.True(t, MonthlySchedule(now, &lastMonth))
	assert.False(t, MonthlySchedule(now, &thisMonth))
}

func TestRefresher_ImportsThenSkips(t *testing.T) {
	st := NewMemory()
	loader := &stubLoader{snap: NewSnapshot("u", importAt, []string{"AAA010101AAA"})}
	m := metrics.New(prometheus.NewRegistry())
	r := NewRefresher(loader, st, m)
	r.now = func() time.Time { return importAt.Add(48 * time.Hour) }
	ctx := context.Background()

	res, err := r.Run(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	require.NotNil(t, res.Import)
	assert.Nil(t, res.Previous)
	assert.Equal(t, 1, res.Import.TotalCount)

	res, err = r.Run(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, loader.calls)

	res, err = r.Run(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, loader.calls)
	require.NotNil(t, res.Previous)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlacklistRefresh.WithLabelValues("imported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlacklistRefresh.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlacklistSize))
}

func TestRefresher_NextMonthRuns(t *testing.T) {
	st := NewMemory()
	loader := &stubLoader{snap: NewSnapshot("u", importAt, []string{"AAA010101AAA"})}
	r := NewRefresher(loader, st, nil)
	r.now = func() time.Time { return importAt }
	ctx := context.Background()

	_, err := r.Run(ctx, false)
	require.NoError(t, err)

	r.now = func() time.Time { return importAt.AddDate(0, 1, 0) }
	res, err := r.Run(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, loader.calls)
}

func TestRefresher_LoaderFailureKeepsSet(t *testing.T) {
	st := NewMemory()
	_, err := st.Replace(context.Background(), NewSnapshot("u", importAt, []string{"AAA010101AAA"}))
	require.NoError(t, err)

	r := NewRefresher(&stubLoader{err: errors.New("listing page down")}, st, nil)
	_, err = r.Run(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load source")

	ok, err := st.Contains(context.Background(), "AAA010101AAA")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefresher_EmptySourceIsRefused(t *testing.T) {
	r := NewRefresher(&stubLoader{snap: Snapshot{SourceURL: "u"}}, NewMemory(), nil)
	_, err := r.Run(context.Background(), true)
	assert.ErrorIs(t, err, ErrEmptySnapshot)
}
