package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingQuerier builds a fresh RowSet on every call and counts calls.
type countingQuerier struct {
	data    atomic.Int64
	years   atomic.Int64
	metrics atomic.Int64

	gate chan struct{} // when set, GetFilteredData waits on it
	err  error
}

func (q *countingQuerier) GetFilteredData(ctx context.Context, key string, f models.Filters) (*rowset.RowSet, error) {
	q.data.Add(1)
	if q.gate != nil {
		<-q.gate
	}
	if q.err != nil {
		return nil, q.err
	}
	schema := rowset.MustSchema(rowset.Column{Name: "dataset", Type: rowset.TypeString})
	return rowset.MustNew(schema, "", [][]any{{key}}), nil
}

func (q *countingQuerier) AvailableYears(context.Context, string) ([]int, error) {
	q.years.Add(1)
	if q.err != nil {
		return nil, q.err
	}
	return []int{2010, 2020}, nil
}

func (q *countingQuerier) MetricOptions(_ context.Context, _ string, year *int) ([]string, error) {
	q.metrics.Add(1)
	if year != nil && *year == 1990 {
		return []string{}, nil
	}
	return []string{"pob_total"}, nil
}

func filters(dt models.DatasetType, year int) models.Filters {
	return models.NewFilters(dt, models.Year(year), models.Neighborhood, "SUPERFICIE")
}

func TestProxyReturnsIdenticalInstance(t *testing.T) {
	q := &countingQuerier{}
	p := NewProxy(q, logging.Discard())
	ctx := context.Background()

	first, err := p.GetFilteredData(ctx, "soil_use", filters(models.SoilUse, 2020))
	require.NoError(t, err)
	second, err := p.GetFilteredData(ctx, "soil_use", filters(models.SoilUse, 2020))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), q.data.Load())

	stats := p.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Computes)
}

func TestProxyClearRecomputes(t *testing.T) {
	q := &countingQuerier{}
	p := NewProxy(q, logging.Discard())
	ctx := context.Background()

	first, err := p.GetFilteredData(ctx, "soil_use", filters(models.SoilUse, 2020))
	require.NoError(t, err)
	_, err = p.AvailableYears(ctx, "soil_use")
	require.NoError(t, err)

	p.Clear()
	assert.Zero(t, p.Stats().Entries)

	second, err := p.GetFilteredData(ctx, "soil_use", filters(models.SoilUse, 2020))
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, first.Equal(second))
	assert.Equal(t, int64(2), q.data.Load())
	assert.Equal(t, int64(1), p.Stats().Clears)
}

func TestProxyKeyIncludesEveryFilter(t *testing.T) {
	q := &countingQuerier{}
	p := NewProxy(q, logging.Discard())
	ctx := context.Background()

	calls := []struct {
		key string
		f   models.Filters
	}{
		{"soil_use", filters(models.SoilUse, 2020)},
		{"soil_use", filters(models.Demographic, 2020)},
		{"soil_use", filters(models.SoilUse, 2021)},
		{"soil_use", models.NewFilters(models.SoilUse, nil, models.Neighborhood, "SUPERFICIE")},
		{"soil_use", models.NewFilters(models.SoilUse, models.Year(2020), models.Block, "SUPERFICIE")},
		{"soil_use", models.NewFilters(models.SoilUse, models.Year(2020), models.Neighborhood, "")},
		{"edafologicos", filters(models.SoilUse, 2020)},
	}
	for _, c := range calls {
		_, err := p.GetFilteredData(ctx, c.key, c.f)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(len(calls)), q.data.Load())
	assert.Equal(t, len(calls), p.Stats().Entries)
}

func TestProxyErrorsAreNotCached(t *testing.T) {
	q := &countingQuerier{err: errors.New("source down")}
	p := NewProxy(q, logging.Discard())
	ctx := context.Background()

	_, err := p.GetFilteredData(ctx, "demographic", filters(models.Demographic, 2020))
	require.Error(t, err)
	assert.Zero(t, p.Stats().Entries)

	q.err = nil
	rs, err := p.GetFilteredData(ctx, "demographic", filters(models.Demographic, 2020))
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
	assert.Equal(t, int64(2), q.data.Load())
	assert.Equal(t, int64(1), p.Stats().Errors)
}

func TestProxySingleFlight(t *testing.T) {
	q := &countingQuerier{gate: make(chan struct{})}
	p := NewProxy(q, logging.Discard())
	ctx := context.Background()

	const callers = 16
	results := make([]*rowset.RowSet, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rs, err := p.GetFilteredData(ctx, "soil_use", filters(models.SoilUse, 2020))
			assert.NoError(t, err)
			results[i] = rs
		}(i)
	}

	// Let every caller reach the flight before releasing the computation.
	require.Eventually(t, func() bool { return p.Stats().Misses+p.Stats().Hits == callers }, time.Second, time.Millisecond)
	close(q.gate)
	wg.Wait()

	assert.Equal(t, int64(1), q.data.Load())
	for _, rs := range results {
		assert.Same(t, results[0], rs)
	}
}

func TestProxyCallerCancelDoesNotFailOthers(t *testing.T) {
	q := &countingQuerier{gate: make(chan struct{})}
	p := NewProxy(q, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := p.GetFilteredData(ctx, "soil_use", filters(models.SoilUse, 2020))
		done <- err
	}()
	require.Eventually(t, func() bool { return q.data.Load() == 1 }, time.Second, time.Millisecond)
	close(q.gate)
	assert.NoError(t, <-done)
	assert.Equal(t, 1, p.Stats().Entries)
}

func TestProxyClearDuringFlightIsNotStored(t *testing.T) {
	q := &countingQuerier{gate: make(chan struct{})}
	p := NewProxy(q, logging.Discard())

	done := make(chan *rowset.RowSet, 1)
	go func() {
		rs, _ := p.GetFilteredData(context.Background(), "soil_use", filters(models.SoilUse, 2020))
		done <- rs
	}()
	require.Eventually(t, func() bool { return q.data.Load() == 1 }, time.Second, time.Millisecond)
	p.Clear()
	close(q.gate)

	assert.NotNil(t, <-done)
	assert.Zero(t, p.Stats().Entries)
}

func TestProxyYearsAndMetrics(t *testing.T) {
	q := &countingQuerier{}
	p := NewProxy(q, logging.Discard())
	ctx := context.Background()

	years, err := p.AvailableYears(ctx, "demographic")
	require.NoError(t, err)
	years[0] = 1900 // callers cannot corrupt the entry
	years, err = p.AvailableYears(ctx, "demographic")
	require.NoError(t, err)
	assert.Equal(t, []int{2010, 2020}, years)
	assert.Equal(t, int64(1), q.years.Load())

	_, err = p.MetricOptions(ctx, "demographic", nil)
	require.NoError(t, err)
	_, err = p.MetricOptions(ctx, "demographic", models.Year(2020))
	require.NoError(t, err)
	empty, err := p.MetricOptions(ctx, "demographic", models.Year(1990))
	require.NoError(t, err)
	assert.Empty(t, empty)
	_, err = p.MetricOptions(ctx, "demographic", models.Year(2020))
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.metrics.Load())
}

func TestProxyWarm(t *testing.T) {
	q := &countingQuerier{}
	p := NewProxy(q, logging.Discard())

	require.NoError(t, p.Warm(context.Background(), "demographic", "soil_use"))
	assert.Equal(t, 2, p.Stats().Entries)

	q.err = errors.New("down")
	p.Clear()
	err := p.Warm(context.Background(), "economic")
	assert.ErrorContains(t, err, "warm economic")
}

func TestKeyString(t *testing.T) {
	a := NewKey("soil_use", models.NewFilters(models.SoilUse, nil, models.Block, ""))
	b := NewKey("soil_use", models.NewFilters(models.SoilUse, models.Year(0), models.Block, ""))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a.String(), b.String())
}
