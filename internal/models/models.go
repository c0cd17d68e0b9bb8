package models

import (
	"slices"
	"strings"
)

// DatasetType identifies one of the statistics tables served by the dashboard.
type DatasetType int

const (
	Demographic DatasetType = iota
	SoilUse
	Economic
)

var datasetNames = map[DatasetType]string{
	Demographic: "demographic",
	SoilUse:     "soil_use",
	Economic:    "economic",
}

// Spanish route values from the dashboard URLs are accepted as aliases.
var datasetAliases = map[string]DatasetType{
	"demographic":  Demographic,
	"demograficos": Demographic,
	"soil_use":     SoilUse,
	"soil-use":     SoilUse,
	"edafologicos": SoilUse,
	"economic":     Economic,
	"economicos":   Economic,
}

func (d DatasetType) String() string {
	if s, ok := datasetNames[d]; ok {
		return s
	}
	return "unknown"
}

// ParseDatasetType maps a raw key to a DatasetType. ok is false for unknown keys.
func ParseDatasetType(key string) (DatasetType, bool) {
	d, ok := datasetAliases[strings.ToLower(strings.TrimSpace(key))]
	return d, ok
}

// DatasetTypes lists every dataset type in declaration order.
func DatasetTypes() []DatasetType {
	return []DatasetType{Demographic, SoilUse, Economic}
}

// Granularity is the spatial unit results are aggregated to.
type Granularity int

const (
	Block Granularity = iota
	BlockGroup
	Neighborhood
)

var granularityNames = map[Granularity]string{
	Block:        "block",
	BlockGroup:   "block_group",
	Neighborhood: "neighborhood",
}

var granularityAliases = map[string]Granularity{
	"block":        Block,
	"manzana":      Block,
	"block_group":  BlockGroup,
	"block-group":  BlockGroup,
	"ageb":         BlockGroup,
	"neighborhood": Neighborhood,
	"colonia":      Neighborhood,
}

func (g Granularity) String() string {
	if s, ok := granularityNames[g]; ok {
		return s
	}
	return "unknown"
}

// ParseGranularity maps a raw key to a Granularity. ok is false for unknown keys.
func ParseGranularity(key string) (Granularity, bool) {
	g, ok := granularityAliases[strings.ToLower(strings.TrimSpace(key))]
	return g, ok
}

// Descriptor locates a table and the column holding its geometry.
type Descriptor struct {
	TableName      string `json:"table_name"`
	GeometryColumn string `json:"geometry_column"`
}

// tooltipColumns is fixed per dataset type.
var tooltipColumns = map[DatasetType][]string{
	Demographic: {ColBlockGroupID, ColNeighborhoodName, "alc", "amb_loc", "area_km2"},
	SoilUse:     {ColBlockGroupID, ColNeighborhoodName, ColLandUse, ColDensity, ColFloors, ColHeight},
	Economic:    {ColBlockID, ColNeighborhoodName},
}

// Filters is the dashboard filter set for one map request.
type Filters struct {
	DatasetType DatasetType
	Year        *int
	Granularity Granularity
	Metric      string

	tooltips []string
}

// NewFilters builds a filter set; tooltip columns are derived from the dataset type.
func NewFilters(dt DatasetType, year *int, g Granularity, metric string) Filters {
	var y *int
	if year != nil {
		v := *year
		y = &v
	}
	return Filters{
		DatasetType: dt,
		Year:        y,
		Granularity: g,
		Metric:      metric,
		tooltips:    slices.Clone(tooltipColumns[dt]),
	}
}

// TooltipColumns returns a copy of the hover columns for the dataset type.
func (f Filters) TooltipColumns() []string {
	return slices.Clone(f.tooltips)
}

// Year returns a pointer to y, for building optional year filters.
func Year(y int) *int {
	return &y
}

// --- API MODELS ---

type CacheStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Computes int64 `json:"computes"`
	Errors   int64 `json:"errors"`
	Clears   int64 `json:"clears"`
}

type YearsResponse struct {
	Dataset string `json:"dataset"`
	Years   []int  `json:"years"`
}

type MetricsResponse struct {
	Dataset string   `json:"dataset"`
	Year    *int         `json:"year,omitempty"`
	Metrics []MetricInfo `json:"metrics"`
}

type RowsResponse struct {
	Geometry string           `json:"geometry"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"data"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

type DatasetInfo struct {
	Key            string   `json:"key"`
	TableName      string   `json:"table_name"`
	GeometryColumn string   `json:"geometry_column"`
	Tooltips       []string `json:"tooltips"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}
