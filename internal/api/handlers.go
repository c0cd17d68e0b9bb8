package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/catalog"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/engine"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/geo"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"github.com/labstack/echo/v4"
	"github.com/paulmach/orb"
)

const (
	FormatGeoJSON = "geojson"
	FormatJSON    = "json"
	FormatArrow   = "arrow"

	MIMEArrowStream = "application/vnd.apache.arrow.stream"
)

// Queries is the read surface served by the API, usually the cache proxy.
type Queries interface {
	GetFilteredData(ctx context.Context, key string, f models.Filters) (*rowset.RowSet, error)
	AvailableYears(ctx context.Context, key string) ([]int, error)
	MetricOptions(ctx context.Context, key string, year *int) ([]string, error)
}

// CacheAdmin exposes cache maintenance.
type CacheAdmin interface {
	Clear()
	Stats() models.CacheStats
}

type Handler struct {
	queries      Queries
	cache        CacheAdmin
	catalog      *catalog.Catalog
	logger       *slog.Logger
	defaultLimit int
	ready        atomic.Bool
}

func NewHandler(q Queries, cache CacheAdmin, cat *catalog.Catalog, logger *slog.Logger) *Handler {
	logger = logging.OrDefault(logger)
	if cat == nil {
		cat = catalog.New(logger)
	}
	return &Handler{queries: q, cache: cache, catalog: cat, logger: logger}
}

// SetDefaultLimit sets the page size used when a request has no limit.
// 0 means the whole result.
func (h *Handler) SetDefaultLimit(n int) { h.defaultLimit = n }

// SetReady flips readiness once background warm-up is done.
func (h *Handler) SetReady(ready bool) { h.ready.Store(ready) }

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)

	api := e.Group("/api")
	api.GET("/datasets", h.ListDatasets)
	api.GET("/datasets/:key/data", h.GetData)
	api.GET("/datasets/:key/years", h.GetYears)
	api.GET("/datasets/:key/metrics", h.GetMetrics)
	api.GET("/metrics/glossary", h.MetricGlossary)
	api.POST("/cache/clear", h.ClearCache)
	api.GET("/cache/stats", h.CacheStats)
}

// --- HANDLERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// getYearParam returns nil when year is absent.
func getYearParam(c echo.Context) (*int, error) {
	raw := c.QueryParam("year")
	if raw == "" {
		return nil, nil
	}
	y, err := strconv.Atoi(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "year must be an integer")
	}
	return &y, nil
}

// filtersFor builds the filter set of a data request. Unknown type and
// granularity values fall back to the catalog defaults.
func (h *Handler) filtersFor(c echo.Context, key string) (models.Filters, error) {
	year, err := getYearParam(c)
	if err != nil {
		return models.Filters{}, err
	}
	var dt models.DatasetType
	if typeKey := c.QueryParam("type"); typeKey != "" {
		dt, _ = h.catalog.Dataset(typeKey)
	} else if parsed, ok := models.ParseDatasetType(key); ok {
		dt = parsed
	} else {
		// The service reports the unknown key when it resolves it.
		dt = catalog.DefaultDataset
	}
	g := catalog.DefaultGranularity
	if raw := c.QueryParam("granularity"); raw != "" {
		g = h.catalog.Granularity(raw)
	}
	return models.NewFilters(dt, year, g, c.QueryParam("metric")), nil
}

func (h *Handler) ListDatasets(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.List())
}

// GetData serves one map layer as GeoJSON (default), JSON rows or an
// Arrow IPC stream. Empty results are 200 with an empty body of the
// requested format.
func (h *Handler) GetData(c echo.Context) error {
	key := c.Param("key")
	format := c.QueryParam("format")
	if format == "" {
		format = FormatGeoJSON
	}
	if format != FormatGeoJSON && format != FormatJSON && format != FormatArrow {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be geojson, json or arrow")
	}
	f, err := h.filtersFor(c, key)
	if err != nil {
		return err
	}

	rs, err := h.queries.GetFilteredData(c.Request().Context(), key, f)
	if err != nil {
		return h.fail(c, err)
	}

	total := rs.Len()
	limit, offset := getPaginationParams(c, h.defaultLimit)
	if limit <= 0 {
		limit = total
	}
	page := rs.Slice(offset, limit)
	c.Response().Header().Set("X-Total-Count", strconv.Itoa(total))
	if total == 0 {
		h.logger.Info("no data for request", "dataset_key", key, "granularity", f.Granularity.String())
	}

	switch format {
	case FormatArrow:
		c.Response().Header().Set(echo.HeaderContentType, MIMEArrowStream)
		c.Response().WriteHeader(http.StatusOK)
		return page.WriteArrowIPC(c.Response())
	case FormatJSON:
		return c.JSON(http.StatusOK, models.RowsResponse{
			Geometry: rs.GeometryColumn(),
			Columns:  rs.Columns(),
			Rows:     records(page),
			Total:    total,
			Limit:    limit,
			Offset:   offset,
		})
	}
	return c.JSON(http.StatusOK, page.ToGeoJSON())
}

func (h *Handler) GetYears(c echo.Context) error {
	key := c.Param("key")
	years, err := h.queries.AvailableYears(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, models.YearsResponse{Dataset: key, Years: years})
}

func (h *Handler) GetMetrics(c echo.Context) error {
	key := c.Param("key")
	year, err := getYearParam(c)
	if err != nil {
		return err
	}
	metrics, err := h.queries.MetricOptions(c.Request().Context(), key, year)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, models.MetricsResponse{
		Dataset: key,
		Year:    year,
		Metrics: models.DescribeMetrics(metrics),
	})
}

// MetricGlossary lists the described census metrics for the dashboard's
// reference table.
func (h *Handler) MetricGlossary(c echo.Context) error {
	return c.JSON(http.StatusOK, models.DemographicMetrics())
}

func (h *Handler) ClearCache(c echo.Context) error {
	h.cache.Clear()
	return c.JSON(http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cache.Stats())
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{Status: "ok", Ready: h.ready.Load()})
}

// Ready is 503 until warm-up finishes.
func (h *Handler) Ready(c echo.Context) error {
	if !h.ready.Load() {
		return c.JSON(http.StatusServiceUnavailable, models.HealthResponse{Status: "loading"})
	}
	return c.JSON(http.StatusOK, models.HealthResponse{Status: "ok", Ready: true})
}

// fail maps row source failures to 503 and everything else to 500.
func (h *Handler) fail(c echo.Context, err error) error {
	var le *engine.LoadError
	if errors.As(err, &le) {
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:     le.Error(),
			Retryable: le.Retryable,
		})
	}
	h.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
}

// records renders rows for JSON; geometries become WKT.
func records(rs *rowset.RowSet) []map[string]any {
	out := make([]map[string]any, rs.Len())
	for i := range out {
		rec := rs.Record(i)
		for k, v := range rec {
			if g, ok := v.(orb.Geometry); ok {
				rec[k] = geo.Key(g)
			}
		}
		out[i] = rec
	}
	return out
}
