package engine

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
)

// minChunk keeps small inputs on a single worker.
const minChunk = 4096

type reduceOp int

const (
	opFirst reduceOp = iota
	opSum
	opMean
)

// measure is one aggregated column.
type measure struct {
	column string
	op     reduceOp
}

// soilUsePolicy is the grouping of land-use rows at a polygon granularity.
type soilUsePolicy struct {
	keys    []string
	dedup   []string
	measure []measure
}

var soilUseMeasures = []measure{
	{models.ColSurface, opSum},
	{models.ColNeighborhoodName, opFirst},
	{models.ColDensity, opFirst},
	{models.ColFloors, opMean},
	{models.ColHeight, opMean},
}

var soilUsePolicies = map[models.Granularity]soilUsePolicy{
	models.BlockGroup: {
		keys:    []string{models.ColBlockGroupGID, models.ColBlockGroupID, models.ColLandUse, models.ColBlockGroupGeom},
		dedup:   []string{models.ColBlockGroupGID, models.ColBlockGroupID, models.ColBlockGroupGeom},
		measure: soilUseMeasures,
	},
	models.Neighborhood: {
		keys:    []string{models.ColNeighborhoodID, models.ColLandUse, models.ColNeighborhoodGeom},
		dedup:   []string{models.ColNeighborhoodID, models.ColNeighborhoodGeom},
		measure: soilUseMeasures,
	},
}

// polygonKeys are the identity and geometry columns of each polygon layer.
var polygonKeys = map[models.Granularity][2]string{
	models.Block:        {models.ColBlockID, models.ColBlockGeom},
	models.BlockGroup:   {models.ColBlockGroupID, models.ColBlockGroupGeom},
	models.Neighborhood: {models.ColNeighborhoodID, models.ColNeighborhoodGeom},
}

// Aggregator reduces joined rows to one row per polygon and category.
type Aggregator struct {
	logger *slog.Logger
}

func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{logger: logging.OrDefault(logger)}
}

// Aggregate applies the policy for (filters.Granularity, dt). Groups come
// out in order of first appearance; "first" takes the first non-null
// value in join order. Empty input is returned unchanged.
func (a *Aggregator) Aggregate(rows *rowset.RowSet, dt models.DatasetType, f models.Filters) *rowset.RowSet {
	log := a.logger.With("granularity", f.Granularity.String(), "dataset", dt.String())
	if rows.IsEmpty() {
		log.Warn("no rows to aggregate")
		return rows
	}

	retained := f.TooltipColumns()
	if f.Metric != "" {
		retained = append([]string{f.Metric}, retained...)
	}
	keys := polygonKeys[f.Granularity]

	if f.Granularity == models.Block {
		cols := append(retained, keys[0], keys[1])
		out := rows.Select(cols...)
		if out.HasColumn(keys[1]) {
			out = out.WithGeometry(keys[1])
		} else if g := rows.GeometryColumn(); g != "" {
			// Datasets carrying their own block geometry keep it active.
			out = rows.Select(append(cols, g)...).WithGeometry(g)
		}
		log.Debug("block selection", "columns", out.Columns(), "rows", out.Len())
		return out
	}

	switch dt {
	case models.Demographic:
		cols := append(retained, keys[0], keys[1])
		if missing := rows.Missing(cols...); len(missing) > 0 {
			log.Debug("grouping columns not present", "missing", missing)
		}
		// Grouping by every retained column and keeping the first row
		// leaves exactly the distinct tuples of those columns.
		out := rows.Select(cols...).Distinct().WithGeometry(keys[1])
		log.Debug("first row per group", "groups", out.Len())
		return out

	case models.SoilUse:
		p, ok := soilUsePolicies[f.Granularity]
		if !ok {
			break
		}
		out := groupReduce(rows, p.keys, p.measure).Distinct(p.dedup...).WithGeometry(keys[1])
		log.Debug("land use totals", "groups", out.Len())
		return out
	}

	log.Warn("no aggregation policy, returning rows unchanged")
	return rows
}

// --- GROUP REDUCE ---

type accum struct {
	first any
	sumI  int64
	sumF  float64
	count int
}

type group struct {
	keys []any
	acc  []accum
}

// partialAgg holds the groups of one chunk in order of first appearance.
type partialAgg struct {
	order  []string
	groups map[string]*group
}

// groupReduce groups rows by the present key columns and reduces each
// present measure. Null keys form their own group. Sum and mean skip
// nulls; a group with no values yields null. Non-numeric columns asked
// for a sum or mean fall back to first.
func groupReduce(rows *rowset.RowSet, keyCols []string, measures []measure) *rowset.RowSet {
	schema := rows.Schema()

	// 1. Resolve columns
	var keyIdx []int
	var outCols []rowset.Column
	for _, name := range keyCols {
		if c, i, ok := schema.Lookup(name); ok {
			keyIdx = append(keyIdx, i)
			outCols = append(outCols, c)
		}
	}
	var ms []measure
	var mIdx []int
	var mType []rowset.Type
	for _, m := range measures {
		c, i, ok := schema.Lookup(m.column)
		if !ok || containsIdx(keyIdx, i) {
			continue
		}
		if m.op != opFirst && !c.Type.Numeric() {
			m.op = opFirst
		}
		if m.op == opMean {
			c.Type = rowset.TypeFloat
		}
		ms = append(ms, m)
		mIdx = append(mIdx, i)
		mType = append(mType, schema.Columns()[i].Type)
		outCols = append(outCols, c)
	}

	// 2. Parallel partial aggregation over contiguous chunks
	n := rows.Len()
	numWorkers := runtime.NumCPU()
	if limit := (n + minChunk - 1) / minChunk; numWorkers > limit {
		numWorkers = limit
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunkSize := n / numWorkers

	partials := make([]*partialAgg, numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if w == numWorkers-1 {
			end = n
		}

		wg.Add(1)
		go func(idx, s, e int) {
			defer wg.Done()
			p := &partialAgg{groups: make(map[string]*group)}
			vals := make([]any, len(keyIdx))
			for r := s; r < e; r++ {
				row := rows.Row(r)
				for k, i := range keyIdx {
					vals[k] = row[i]
				}
				key := rowset.Key(vals...)
				g, ok := p.groups[key]
				if !ok {
					g = &group{keys: append([]any(nil), vals...), acc: make([]accum, len(ms))}
					p.groups[key] = g
					p.order = append(p.order, key)
				}
				for m, i := range mIdx {
					g.acc[m].add(row[i])
				}
			}
			partials[idx] = p
		}(w, start, end)
	}
	wg.Wait()

	// 3. Merge in chunk order so first appearance is global
	final := partials[0]
	for _, p := range partials[1:] {
		for _, key := range p.order {
			g := p.groups[key]
			dst, ok := final.groups[key]
			if !ok {
				final.groups[key] = g
				final.order = append(final.order, key)
				continue
			}
			for m := range dst.acc {
				dst.acc[m].merge(g.acc[m])
			}
		}
	}

	// 4. Build result
	out := make([][]any, 0, len(final.order))
	for _, key := range final.order {
		g := final.groups[key]
		row := make([]any, 0, len(outCols))
		row = append(row, g.keys...)
		for m, op := range ms {
			row = append(row, g.acc[m].result(op.op, mType[m]))
		}
		out = append(out, row)
	}
	return mustBuild(outCols, rows.GeometryColumn(), out)
}

func (a *accum) add(v any) {
	switch x := v.(type) {
	case nil:
		return
	case int64:
		a.sumI += x
		a.sumF += float64(x)
	case float64:
		a.sumF += x
	}
	if a.count == 0 {
		a.first = v
	}
	a.count++
}

func (a *accum) merge(o accum) {
	if a.count == 0 {
		a.first = o.first
	}
	a.sumI += o.sumI
	a.sumF += o.sumF
	a.count += o.count
}

func (a *accum) result(op reduceOp, t rowset.Type) any {
	if a.count == 0 {
		return nil
	}
	switch op {
	case opSum:
		if t == rowset.TypeInt {
			return a.sumI
		}
		return a.sumF
	case opMean:
		return a.sumF / float64(a.count)
	}
	return a.first
}

func containsIdx(idx []int, i int) bool {
	for _, v := range idx {
		if v == i {
			return true
		}
	}
	return false
}
