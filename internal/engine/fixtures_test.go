package engine

import (
	"context"
	"sync"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"github.com/paulmach/orb"
)

// rect is the unit-height rectangle [x0, x1] x [0, 1].
func rect(x0, x1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x0, 0}, {x1, 0}, {x1, 1}, {x0, 1}, {x0, 0}}}
}

// Layout: blocks 0..3 are unit squares at x=0..3, block 4 sits at x=10.
// Block group A covers blocks 0-1, B covers 2-3, C covers block 4.
// Neighborhood 1 covers blocks 0-3, neighborhood 2 covers block 4.
func polygonTable() *rowset.RowSet {
	schema := rowset.MustSchema(
		rowset.Column{Name: models.ColBlockID, Type: rowset.TypeInt},
		rowset.Column{Name: models.ColBlockGeom, Type: rowset.TypeGeometry},
		rowset.Column{Name: models.ColBlockGroupGID, Type: rowset.TypeInt},
		rowset.Column{Name: models.ColBlockGroupID, Type: rowset.TypeString},
		rowset.Column{Name: models.ColBlockGroupGeom, Type: rowset.TypeGeometry},
		rowset.Column{Name: models.ColNeighborhoodID, Type: rowset.TypeInt},
		rowset.Column{Name: models.ColNeighborhoodName, Type: rowset.TypeString},
		rowset.Column{Name: models.ColNeighborhoodGeom, Type: rowset.TypeGeometry},
	)
	return rowset.MustNew(schema, models.ColBlockGeom, [][]any{
		{0, rect(0, 1), 1, "A", rect(0, 2), 1, "Del Carmen", rect(0, 4)},
		{1, rect(1, 2), 1, "A", rect(0, 2), 1, "Del Carmen", rect(0, 4)},
		{2, rect(2, 3), 2, "B", rect(2, 4), 1, "Del Carmen", rect(0, 4)},
		{3, rect(3, 4), 2, "B", rect(2, 4), 1, "Del Carmen", rect(0, 4)},
		{4, rect(10, 11), 3, "C", rect(10, 11), 2, "Santa Catarina", rect(10, 11)},
	})
}

func polygonsAt(g models.Granularity) *rowset.RowSet {
	return polygonTable().WithGeometry(polygonKeys[g][1])
}

func soilUseTable() *rowset.RowSet {
	schema := rowset.MustSchema(
		rowset.Column{Name: models.ColBlockID, Type: rowset.TypeInt},
		rowset.Column{Name: models.ColBlockGeom, Type: rowset.TypeGeometry},
		rowset.Column{Name: models.ColYear, Type: rowset.TypeInt},
		rowset.Column{Name: models.ColLandUse, Type: rowset.TypeString},
		rowset.Column{Name: models.ColSurface, Type: rowset.TypeFloat},
		rowset.Column{Name: models.ColDensity, Type: rowset.TypeString},
		rowset.Column{Name: models.ColFloors, Type: rowset.TypeFloat},
		rowset.Column{Name: models.ColHeight, Type: rowset.TypeFloat},
	)
	return rowset.MustNew(schema, models.ColBlockGeom, [][]any{
		{0, rect(0, 1), 2020, "habitacional", 100, "H1", 2, 6},
		{1, rect(1, 2), 2020, "habitacional", 50, "H1", 4, 12},
		{2, rect(2, 3), 2020, "comercial", 30, "C", 1, 3},
		{3, rect(3, 4), 2020, "habitacional", 20, "H2", nil, nil},
		{0, rect(0, 1), 2021, "habitacional", 999, "H1", 2, 6},
	})
}

func demographicTable() *rowset.RowSet {
	schema := rowset.MustSchema(
		rowset.Column{Name: models.ColDataBlockGroup, Type: rowset.TypeString},
		rowset.Column{Name: models.ColYear, Type: rowset.TypeInt},
		rowset.Column{Name: "pob_total", Type: rowset.TypeInt},
		rowset.Column{Name: "alc", Type: rowset.TypeString},
		rowset.Column{Name: "area_km2", Type: rowset.TypeFloat},
		rowset.Column{Name: "geometry", Type: rowset.TypeGeometry},
	)
	return rowset.MustNew(schema, "geometry", [][]any{
		{"A", 2020, 1200, "Coyoacán", 0.4, rect(0, 2)},
		{"B", 2020, 800, "Coyoacán", 0.3, rect(2, 4)},
		{"A", 2010, 1100, "Coyoacán", 0.4, rect(0, 2)},
	})
}

func economicTable() *rowset.RowSet {
	schema := rowset.MustSchema(
		rowset.Column{Name: models.ColBlockID, Type: rowset.TypeInt},
		rowset.Column{Name: models.ColNeighborhoodName, Type: rowset.TypeString},
		rowset.Column{Name: "unidades", Type: rowset.TypeInt},
		rowset.Column{Name: "geom_manzana", Type: rowset.TypeGeometry},
	)
	return rowset.MustNew(schema, "geom_manzana", [][]any{
		{0, "Del Carmen", 12, rect(0, 1)},
		{2, "Del Carmen", 3, rect(2, 3)},
	})
}

// fakeSource serves fixed tables and counts loads.
type fakeSource struct {
	mu     sync.Mutex
	tables map[string]*rowset.RowSet
	err    error
	calls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{tables: map[string]*rowset.RowSet{
		"poligonos_manzanas_agebs_colonias": polygonTable(),
		"datos_edafologicos_particionada":   soilUseTable(),
		"datos_demograficos_particionada":   demographicTable(),
		"datos_economicos_particionada":     economicTable(),
	}}
}

func (f *fakeSource) Load(_ context.Context, table, geometryColumn string) (*rowset.RowSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rs, ok := f.tables[table]
	if !ok {
		return rowset.Empty(), nil
	}
	return rs.WithGeometry(geometryColumn), nil
}
