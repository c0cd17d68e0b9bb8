// Package catalog maps dataset keys and granularities to the PostGIS
// tables that hold them. Callers pass raw route values, so unknown keys
// never fail: they resolve to the demographic dataset or the block layer
// and a warning is logged.
package catalog

import (
	"log/slog"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
)

const polygonTable = "poligonos_manzanas_agebs_colonias"

var datasets = map[models.DatasetType]models.Descriptor{
	models.Demographic: {TableName: "datos_demograficos_particionada", GeometryColumn: "geometry"},
	models.SoilUse:     {TableName: "datos_edafologicos_particionada", GeometryColumn: models.ColBlockGeom},
	models.Economic:    {TableName: "datos_economicos_particionada", GeometryColumn: "geom_manzana"},
}

var polygons = map[models.Granularity]models.Descriptor{
	models.Block:        {TableName: polygonTable, GeometryColumn: models.ColBlockGeom},
	models.BlockGroup:   {TableName: polygonTable, GeometryColumn: models.ColBlockGroupGeom},
	models.Neighborhood: {TableName: polygonTable, GeometryColumn: models.ColNeighborhoodGeom},
}

const (
	DefaultDataset     = models.Demographic
	DefaultGranularity = models.Block
)

type Catalog struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Catalog {
	return &Catalog{logger: logging.OrDefault(logger)}
}

// Dataset resolves a dataset key to its type and table descriptor.
func (c *Catalog) Dataset(key string) (models.DatasetType, models.Descriptor) {
	dt, ok := models.ParseDatasetType(key)
	if !ok {
		c.logger.Warn("unknown dataset key, using default",
			"key", key, "default", DefaultDataset.String())
		dt = DefaultDataset
	}
	return dt, datasets[dt]
}

// Granularity resolves a raw granularity key.
func (c *Catalog) Granularity(key string) models.Granularity {
	g, ok := models.ParseGranularity(key)
	if !ok {
		c.logger.Warn("unknown granularity, using default",
			"key", key, "default", DefaultGranularity.String())
		return DefaultGranularity
	}
	return g
}

// Polygons returns the polygon layer for g. Values outside the enum
// resolve to the block layer.
func (c *Catalog) Polygons(g models.Granularity) models.Descriptor {
	d, ok := polygons[g]
	if !ok {
		c.logger.Warn("unknown granularity, using default",
			"granularity", int(g), "default", DefaultGranularity.String())
		return polygons[DefaultGranularity]
	}
	return d
}

// List describes every dataset in declaration order.
func (c *Catalog) List() []models.DatasetInfo {
	out := make([]models.DatasetInfo, 0, len(datasets))
	for _, dt := range models.DatasetTypes() {
		d := datasets[dt]
		out = append(out, models.DatasetInfo{
			Key:            dt.String(),
			TableName:      d.TableName,
			GeometryColumn: d.GeometryColumn,
			Tooltips:       models.NewFilters(dt, nil, DefaultGranularity, "").TooltipColumns(),
		})
	}
	return out
}

// Tables returns the descriptors of every dataset and polygon layer.
func (c *Catalog) Tables() []models.Descriptor {
	out := make([]models.Descriptor, 0, len(datasets)+len(polygons))
	for _, dt := range models.DatasetTypes() {
		out = append(out, datasets[dt])
	}
	for _, g := range []models.Granularity{models.Block, models.BlockGroup, models.Neighborhood} {
		out = append(out, polygons[g])
	}
	return out
}
