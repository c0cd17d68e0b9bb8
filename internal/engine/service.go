package engine

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/catalog"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"go.opentelemetry.io/otel/attribute"
)

// Service answers map queries: load, filter by year, join with the
// polygon layer, aggregate. It holds no per-query state and is safe
// for concurrent use.
type Service struct {
	source     RowSource
	catalog    *catalog.Catalog
	joiner     *Joiner
	aggregator *Aggregator
	logger     *slog.Logger
}

type Option func(*Service)

// WithContainment replaces the planar containment predicate used by spatial joins.
func WithContainment(fn ContainsFunc) Option {
	return func(s *Service) { s.joiner.contains = fn }
}

func NewService(src RowSource, cat *catalog.Catalog, logger *slog.Logger, opts ...Option) *Service {
	logger = logging.OrDefault(logger)
	if cat == nil {
		cat = catalog.New(logger)
	}
	s := &Service{
		source:     src,
		catalog:    cat,
		joiner:     NewJoiner(logger, nil),
		aggregator: NewAggregator(logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFilteredData runs the full pipeline for one dataset key. Load
// failures surface as *LoadError; everything else degrades to a
// possibly empty RowSet.
func (s *Service) GetFilteredData(ctx context.Context, key string, f models.Filters) (_ *rowset.RowSet, err error) {
	ctx, span := startSpan(ctx, "GetFilteredData", key)
	defer func() { endSpan(span, err) }()

	dt, desc := s.catalog.Dataset(key)
	log := s.logger.With("dataset_key", key, "granularity", f.Granularity.String())
	if dt != f.DatasetType {
		log.Debug("filter dataset type differs from key", "key_type", dt.String(), "filter_type", f.DatasetType.String())
	}

	// 1. Dataset rows
	data, err := s.load(ctx, desc)
	if err != nil {
		log.Error("dataset load failed", "table", desc.TableName, "error", err)
		return nil, err
	}
	log.Debug("dataset loaded", "table", desc.TableName, "rows", data.Len())
	if data.IsEmpty() {
		log.Warn("dataset is empty", "table", desc.TableName)
	}

	// 2. Year filter
	if f.Year != nil && data.HasColumn(models.ColYear) {
		data = filterYear(data, *f.Year)
		log.Debug("year filter applied", "year", *f.Year, "rows", data.Len())
	}

	// 3. Polygon layer
	pdesc := s.catalog.Polygons(f.Granularity)
	polygons, err := s.load(ctx, pdesc)
	if err != nil {
		log.Error("polygon load failed", "table", pdesc.TableName, "error", err)
		return nil, err
	}
	log.Debug("polygons loaded", "geometry", pdesc.GeometryColumn, "rows", polygons.Len())

	// 4. Join
	joined, strategy := s.joiner.Join(polygons, data, dt, f.Granularity)
	recordJoin(ctx, strategy, joined.Len())
	log.Debug("join complete", "strategy", strategy.String(), "rows", joined.Len())

	// 5. Aggregate
	out := s.aggregator.Aggregate(joined, f.DatasetType, f)
	span.SetAttributes(
		attribute.String("join.strategy", strategy.String()),
		attribute.Int("result.rows", out.Len()),
	)
	log.Debug("aggregation complete", "rows", out.Len(), "columns", out.Columns())
	return out, nil
}

// AvailableYears lists the distinct years of a dataset in ascending
// order. Datasets without a year column have none.
func (s *Service) AvailableYears(ctx context.Context, key string) (_ []int, err error) {
	ctx, span := startSpan(ctx, "AvailableYears", key)
	defer func() { endSpan(span, err) }()

	_, desc := s.catalog.Dataset(key)
	data, err := s.load(ctx, desc)
	if err != nil {
		s.logger.Error("dataset load failed", "dataset_key", key, "error", err)
		return nil, err
	}
	if data.IsEmpty() || !data.HasColumn(models.ColYear) {
		s.logger.Warn("dataset has no years", "dataset_key", key)
		return []int{}, nil
	}

	seen := make(map[int]bool)
	years := make([]int, 0)
	for _, v := range data.ColumnValues(models.ColYear) {
		y, ok := asYear(v)
		if !ok || seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
	}
	slices.Sort(years)
	return years, nil
}

// MetricOptions lists the numeric columns of a dataset, optionally
// restricted to one year, excluding the year column itself.
func (s *Service) MetricOptions(ctx context.Context, key string, year *int) (_ []string, err error) {
	ctx, span := startSpan(ctx, "MetricOptions", key)
	defer func() { endSpan(span, err) }()

	_, desc := s.catalog.Dataset(key)
	data, err := s.load(ctx, desc)
	if err != nil {
		s.logger.Error("dataset load failed", "dataset_key", key, "error", err)
		return nil, err
	}
	if year != nil && data.HasColumn(models.ColYear) {
		data = filterYear(data, *year)
	}
	if data.IsEmpty() {
		s.logger.Warn("no rows for metric options", "dataset_key", key)
		return []string{}, nil
	}

	metrics := make([]string, 0)
	for _, c := range data.Schema().Columns() {
		if c.Name == models.ColYear || c.Name == desc.GeometryColumn || !c.Type.Numeric() {
			continue
		}
		metrics = append(metrics, c.Name)
	}
	return metrics, nil
}

func (s *Service) load(ctx context.Context, d models.Descriptor) (*rowset.RowSet, error) {
	start := time.Now()
	rs, err := s.source.Load(ctx, d.TableName, d.GeometryColumn)
	recordLoad(ctx, d.TableName, time.Since(start), err)
	if err != nil {
		return nil, AsLoadError(d.TableName, err)
	}
	if rs == nil {
		rs = rowset.Empty()
	}
	return rs, nil
}

func filterYear(rs *rowset.RowSet, year int) *rowset.RowSet {
	return rs.Filter(func(r rowset.Row) bool {
		y, ok := asYear(r.Get(models.ColYear))
		return ok && y == year
	})
}

func asYear(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	}
	return 0, false
}
