// Package cache memoizes query results in front of the query service.
//
// Entries never expire; they live until Clear. Concurrent misses on the
// same key share one computation, and failed computations are not
// stored, so the next call retries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// Querier is the query surface the proxy wraps.
type Querier interface {
	GetFilteredData(ctx context.Context, key string, f models.Filters) (*rowset.RowSet, error)
	AvailableYears(ctx context.Context, key string) ([]int, error)
	MetricOptions(ctx context.Context, key string, year *int) ([]string, error)
}

// Key identifies one GetFilteredData result.
type Key struct {
	DatasetKey  string
	DatasetType models.DatasetType
	Year        int
	HasYear     bool
	Granularity models.Granularity
	Metric      string
}

func NewKey(datasetKey string, f models.Filters) Key {
	k := Key{
		DatasetKey:  datasetKey,
		DatasetType: f.DatasetType,
		Granularity: f.Granularity,
		Metric:      f.Metric,
	}
	if f.Year != nil {
		k.Year, k.HasYear = *f.Year, true
	}
	return k
}

func (k Key) String() string {
	year := "*"
	if k.HasYear {
		year = strconv.Itoa(k.Year)
	}
	return fmt.Sprintf("%q|%s|%s|%s|%q", k.DatasetKey, k.DatasetType, year, k.Granularity, k.Metric)
}

type metricsKey struct {
	datasetKey string
	year       int
	hasYear    bool
}

func (k metricsKey) String() string {
	if !k.hasYear {
		return strconv.Quote(k.datasetKey) + "|*"
	}
	return strconv.Quote(k.datasetKey) + "|" + strconv.Itoa(k.year)
}

// Proxy is safe for concurrent use. No lock is held while the wrapped
// querier runs.
type Proxy struct {
	next   Querier
	logger *slog.Logger

	mu         sync.RWMutex
	data       map[Key]*rowset.RowSet
	years      map[string][]int
	metrics    map[metricsKey][]string
	generation uint64
	flight     singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
	errors   atomic.Int64
	clears   atomic.Int64
}

func NewProxy(next Querier, logger *slog.Logger) *Proxy {
	p := &Proxy{next: next, logger: logging.OrDefault(logger)}
	p.reset()
	return p
}

func (p *Proxy) reset() {
	p.data = make(map[Key]*rowset.RowSet)
	p.years = make(map[string][]int)
	p.metrics = make(map[metricsKey][]string)
}

// GetFilteredData returns the memoized result for (key, f). Every call
// with an equal cache key gets the same RowSet until Clear.
func (p *Proxy) GetFilteredData(ctx context.Context, key string, f models.Filters) (*rowset.RowSet, error) {
	k := NewKey(key, f)
	return memoize(ctx, p, "GetFilteredData", k.String(),
		func() map[Key]*rowset.RowSet { return p.data }, k,
		func(ctx context.Context) (*rowset.RowSet, error) { return p.next.GetFilteredData(ctx, key, f) },
	)
}

// AvailableYears memoizes the year list of a dataset key.
func (p *Proxy) AvailableYears(ctx context.Context, key string) ([]int, error) {
	years, err := memoize(ctx, p, "AvailableYears", strconv.Quote(key),
		func() map[string][]int { return p.years }, key,
		func(ctx context.Context) ([]int, error) { return p.next.AvailableYears(ctx, key) },
	)
	return slices.Clone(years), err
}

// MetricOptions memoizes the metric columns of a dataset key and year.
func (p *Proxy) MetricOptions(ctx context.Context, key string, year *int) ([]string, error) {
	k := metricsKey{datasetKey: key}
	if year != nil {
		k.year, k.hasYear = *year, true
	}
	metrics, err := memoize(ctx, p, "MetricOptions", k.String(),
		func() map[metricsKey][]string { return p.metrics }, k,
		func(ctx context.Context) ([]string, error) { return p.next.MetricOptions(ctx, key, year) },
	)
	return slices.Clone(metrics), err
}

// memoize returns the entry for key, computing it at most once per
// generation. The computation runs detached from the caller's
// cancellation since other callers may be waiting on it.
func memoize[K comparable, V any](
	ctx context.Context,
	p *Proxy,
	op, flightKey string,
	entries func() map[K]V,
	key K,
	compute func(context.Context) (V, error),
) (V, error) {
	ctx, span := startCacheSpan(ctx, op, flightKey)
	defer span.End()

	// Fast path
	p.mu.RLock()
	v, ok := entries()[key]
	gen := p.generation
	p.mu.RUnlock()
	if ok {
		p.hits.Add(1)
		recordHit(ctx, op)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return v, nil
	}
	p.misses.Add(1)
	recordMiss(ctx, op)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// Singleflight: one computation per key and generation
	res, err, shared := p.flight.Do(strconv.FormatUint(gen, 10)+"|"+op+"|"+flightKey, func() (any, error) {
		// A flight that finished between the fast path and here has
		// already stored the entry.
		p.mu.RLock()
		v, ok := entries()[key]
		p.mu.RUnlock()
		if ok {
			return v, nil
		}

		p.computes.Add(1)
		start := time.Now()
		v, err := compute(context.WithoutCancel(ctx))
		recordCompute(ctx, op, time.Since(start), err)
		if err != nil {
			p.errors.Add(1)
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		// Results computed before a Clear are handed to their callers
		// but not stored.
		if p.generation != gen {
			return v, nil
		}
		if existing, ok := entries()[key]; ok {
			return existing, nil
		}
		entries()[key] = v
		return v, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		var zero V
		p.logger.Debug("cache computation failed", "op", op, "key", flightKey, "error", err)
		return zero, err
	}
	return res.(V), nil
}

// Clear drops every entry. Computations in flight finish for their
// callers but their results are not stored.
func (p *Proxy) Clear() {
	p.mu.Lock()
	n := len(p.data) + len(p.years) + len(p.metrics)
	p.reset()
	p.generation++
	p.mu.Unlock()

	p.clears.Add(1)
	recordClear(context.Background())
	p.logger.Info("query cache cleared", "entries", n)
}

// Stats reports the entry count and counters since construction.
func (p *Proxy) Stats() models.CacheStats {
	p.mu.RLock()
	n := len(p.data) + len(p.years) + len(p.metrics)
	p.mu.RUnlock()
	return models.CacheStats{
		Entries:  n,
		Hits:     p.hits.Load(),
		Misses:   p.misses.Load(),
		Computes: p.computes.Load(),
		Errors:   p.errors.Load(),
		Clears:   p.clears.Load(),
	}
}

// Warm loads the year lists of keys so the first dashboard request is
// served from memory. Failures are collected, not fatal.
func (p *Proxy) Warm(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		years, err := p.AvailableYears(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", key, err))
			continue
		}
		p.logger.Debug("cache warmed", "dataset_key", key, "years", years)
	}
	return errors.Join(errs...)
}
