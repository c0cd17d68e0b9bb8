package engine

import (
	"log/slog"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/geo"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"github.com/paulmach/orb"
)

// Strategy is how a polygon layer and a dataset are combined.
type Strategy int

const (
	// StrategyUnsupported leaves the polygon layer unmerged.
	StrategyUnsupported Strategy = iota
	// StrategyAttribute is a left join on equal key columns.
	StrategyAttribute
	// StrategyPassThrough returns the dataset rows without the polygon layer.
	StrategyPassThrough
	// StrategySpatial is a left join on "polygon contains row geometry".
	StrategySpatial
)

func (s Strategy) String() string {
	switch s {
	case StrategyAttribute:
		return "attribute"
	case StrategyPassThrough:
		return "pass_through"
	case StrategySpatial:
		return "spatial"
	default:
		return "unsupported"
	}
}

// collisionSuffix renames dataset columns whose name the polygon layer already uses.
const collisionSuffix = "_right"

// joinPlan is the resolved join for one (granularity, dataset type) pair.
type joinPlan struct {
	strategy Strategy

	// attribute joins
	leftKeys  []string
	rightKeys []string

	// spatial joins
	polygonColumns []string
	output         []string
}

var soilUseColumns = []string{
	models.ColLandUse, models.ColSurface, models.ColDensity, models.ColFloors, models.ColHeight,
}

func blockGroupJoin() joinPlan {
	return joinPlan{
		strategy:  StrategyAttribute,
		leftKeys:  []string{models.ColBlockGroupID},
		rightKeys: []string{models.ColDataBlockGroup},
	}
}

// planJoin is the closed dispatch over every (granularity, dataset) pair.
func planJoin(g models.Granularity, dt models.DatasetType) joinPlan {
	switch g {
	case models.Block:
		switch dt {
		case models.Demographic:
			return blockGroupJoin()
		case models.SoilUse:
			keys := []string{models.ColBlockID, models.ColBlockGeom}
			return joinPlan{strategy: StrategyAttribute, leftKeys: keys, rightKeys: keys}
		case models.Economic:
			return joinPlan{strategy: StrategyPassThrough}
		}

	case models.Neighborhood:
		switch dt {
		case models.Demographic:
			return blockGroupJoin()
		case models.SoilUse:
			return joinPlan{
				strategy:       StrategySpatial,
				polygonColumns: []string{models.ColNeighborhoodID, models.ColNeighborhoodGeom, models.ColNeighborhoodName},
				output: append([]string{
					models.ColNeighborhoodID, models.ColNeighborhoodName, models.ColNeighborhoodGeom,
				}, soilUseColumns...),
			}
		}

	case models.BlockGroup:
		switch dt {
		case models.Demographic:
			return blockGroupJoin()
		case models.SoilUse:
			return joinPlan{
				strategy:       StrategySpatial,
				polygonColumns: []string{models.ColBlockGroupGID, models.ColBlockGroupID, models.ColBlockGroupGeom, models.ColNeighborhoodName},
				output: append([]string{
					models.ColBlockGroupGID, models.ColBlockGroupID, models.ColNeighborhoodName, models.ColBlockGroupGeom,
				}, soilUseColumns...),
			}
		}
	}
	return joinPlan{strategy: StrategyUnsupported}
}

// ContainsFunc reports whether container spatially contains g.
type ContainsFunc func(container, g orb.Geometry) bool

// Joiner combines a polygon layer with a dataset.
type Joiner struct {
	logger   *slog.Logger
	contains ContainsFunc
}

func NewJoiner(logger *slog.Logger, contains ContainsFunc) *Joiner {
	if contains == nil {
		contains = geo.Contains
	}
	return &Joiner{logger: logging.OrDefault(logger), contains: contains}
}

// Join merges polygons with data for the given pair. It never fails:
// pairs without a join, and joins whose key columns are missing, return
// the polygon rows unchanged.
func (j *Joiner) Join(polygons, data *rowset.RowSet, dt models.DatasetType, g models.Granularity) (*rowset.RowSet, Strategy) {
	plan := planJoin(g, dt)
	log := j.logger.With("granularity", g.String(), "dataset", dt.String(), "strategy", plan.strategy.String())

	switch plan.strategy {
	case StrategyPassThrough:
		log.Debug("returning dataset rows without polygon layer", "rows", data.Len())
		return data, plan.strategy

	case StrategyAttribute:
		if missing := append(polygons.Missing(plan.leftKeys...), data.Missing(plan.rightKeys...)...); len(missing) > 0 {
			log.Warn("join key columns missing, returning polygons unmerged", "missing", missing)
			return polygons, StrategyUnsupported
		}
		log.Debug("attribute join", "left_on", plan.leftKeys, "right_on", plan.rightKeys)
		return j.attributeJoin(polygons, data, plan.leftKeys, plan.rightKeys), plan.strategy

	case StrategySpatial:
		if polygons.GeometryColumn() == "" || data.GeometryColumn() == "" {
			log.Warn("spatial join needs geometry on both sides, returning polygons unmerged",
				"polygon_geometry", polygons.GeometryColumn(), "data_geometry", data.GeometryColumn())
			return polygons, StrategyUnsupported
		}
		log.Debug("spatial join", "predicate", "contains")
		return j.spatialJoin(polygons, data, plan), plan.strategy
	}

	log.Warn("merge not supported for this granularity and dataset, returning polygons unmerged")
	return polygons, StrategyUnsupported
}

// --- ATTRIBUTE JOIN ---

// attributeJoin is a hash left join: the dataset is indexed by key and
// every polygon row is probed against it. Polygon rows without a match
// are kept with null dataset columns. Null keys never match.
func (j *Joiner) attributeJoin(left, right *rowset.RowSet, leftKeys, rightKeys []string) *rowset.RowSet {
	// Key columns with the same name on both sides appear once.
	shared := make(map[string]bool)
	for i := range leftKeys {
		if leftKeys[i] == rightKeys[i] {
			shared[rightKeys[i]] = true
		}
	}

	cols := left.Schema().Columns()
	taken := make(map[string]bool, len(cols))
	for _, c := range cols {
		taken[c.Name] = true
	}
	var rightIdx []int
	for i, c := range right.Schema().Columns() {
		if shared[c.Name] {
			continue
		}
		c.Name = uniqueName(c.Name, taken)
		taken[c.Name] = true
		cols = append(cols, c)
		rightIdx = append(rightIdx, i)
	}

	// 1. Build
	index := make(map[string][]int, right.Len())
	for r := 0; r < right.Len(); r++ {
		vals, ok := keyValues(right, r, rightKeys)
		if !ok {
			continue
		}
		k := rowset.Key(vals...)
		index[k] = append(index[k], r)
	}

	// 2. Probe
	width := len(cols)
	rows := make([][]any, 0, left.Len())
	for l := 0; l < left.Len(); l++ {
		base := left.Row(l)
		var matches []int
		if vals, ok := keyValues(left, l, leftKeys); ok {
			matches = index[rowset.Key(vals...)]
		}
		if len(matches) == 0 {
			out := make([]any, width)
			copy(out, base)
			rows = append(rows, out)
			continue
		}
		for _, r := range matches {
			out := make([]any, 0, width)
			out = append(out, base...)
			rrow := right.Row(r)
			for _, i := range rightIdx {
				out = append(out, rrow[i])
			}
			rows = append(rows, out)
		}
	}

	return mustBuild(cols, left.GeometryColumn(), rows)
}

func keyValues(rs *rowset.RowSet, i int, keys []string) ([]any, bool) {
	vals := make([]any, len(keys))
	for k, c := range keys {
		v := rs.Value(i, c)
		if v == nil {
			return nil, false
		}
		vals[k] = v
	}
	return vals, true
}

func uniqueName(name string, taken map[string]bool) string {
	for taken[name] {
		name += collisionSuffix
	}
	return name
}

// --- SPATIAL JOIN ---

// spatialJoin attaches to every distinct polygon each dataset row whose
// geometry it contains, projects to the plan's output columns and drops
// duplicate tuples. Polygons containing nothing are kept once with null
// dataset columns.
func (j *Joiner) spatialJoin(polygons, data *rowset.RowSet, plan joinPlan) *rowset.RowSet {
	left := polygons.Select(plan.polygonColumns...).Distinct()
	if left.GeometryColumn() == "" {
		left = left.WithGeometry(polygons.GeometryColumn())
	}

	// Output columns come from the polygon side first, then the dataset.
	type source struct {
		fromLeft bool
		name     string
	}
	var cols []rowset.Column
	var sources []source
	var missing []string
	for _, name := range plan.output {
		if c, _, ok := left.Schema().Lookup(name); ok {
			cols = append(cols, c)
			sources = append(sources, source{fromLeft: true, name: name})
			continue
		}
		if c, _, ok := data.Schema().Lookup(name); ok {
			cols = append(cols, c)
			sources = append(sources, source{name: name})
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		j.logger.Warn("spatial join output columns missing", "missing", missing)
	}

	rightBounds := make([]orb.Bound, data.Len())
	rightGeoms := make([]orb.Geometry, data.Len())
	for r := 0; r < data.Len(); r++ {
		if g := data.Geometry(r); g != nil {
			rightGeoms[r] = g
			rightBounds[r] = g.Bound()
		}
	}

	rows := make([][]any, 0, left.Len())
	emit := func(l, r int) {
		out := make([]any, len(sources))
		for k, s := range sources {
			switch {
			case s.fromLeft:
				out[k] = left.Value(l, s.name)
			case r >= 0:
				out[k] = data.Value(r, s.name)
			}
		}
		rows = append(rows, out)
	}

	for l := 0; l < left.Len(); l++ {
		container := left.Geometry(l)
		matched := false
		if container != nil {
			bound := container.Bound()
			for r, g := range rightGeoms {
				if g == nil {
					continue
				}
				if !bound.Contains(rightBounds[r].Min) || !bound.Contains(rightBounds[r].Max) {
					continue
				}
				if j.contains(container, g) {
					emit(l, r)
					matched = true
				}
			}
		}
		if !matched {
			emit(l, -1)
		}
	}

	return mustBuild(cols, polygons.GeometryColumn(), rows).Distinct()
}

// mustBuild assembles a RowSet from values that already came out of
// valid RowSets, so validation cannot fail short of a programming error.
func mustBuild(cols []rowset.Column, geometry string, rows [][]any) *rowset.RowSet {
	schema := rowset.MustSchema(cols...)
	if !schema.Has(geometry) {
		geometry = ""
	}
	return rowset.MustNew(schema, geometry, rows)
}
