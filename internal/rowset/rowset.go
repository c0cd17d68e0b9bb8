package rowset

import (
	"fmt"

	"github.com/paulmach/orb"
)

// RowSet holds a table as ordered rows plus its schema and the name of
// the active geometry column. A RowSet is never modified after it is
// built; every transform returns a new one.
type RowSet struct {
	schema   Schema
	geometry string
	rows     [][]any
}

// New validates rows against schema and returns a RowSet that owns copies
// of them. Values are normalized: ints to int64, floats to float64.
// geometry may be empty when the set has no active geometry column.
func New(schema Schema, geometry string, rows [][]any) (*RowSet, error) {
	if geometry != "" {
		c, _, ok := schema.Lookup(geometry)
		if !ok {
			return nil, fmt.Errorf("geometry column %q not in schema", geometry)
		}
		if c.Type != TypeGeometry {
			return nil, fmt.Errorf("geometry column %q has type %s", geometry, c.Type)
		}
	}

	out := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != schema.Len() {
			return nil, fmt.Errorf("row %d has %d values, schema has %d columns", i, len(row), schema.Len())
		}
		norm := make([]any, len(row))
		for j, v := range row {
			nv, err := normalize(schema.cols[j].Type, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, schema.cols[j].Name, err)
			}
			norm[j] = nv
		}
		out[i] = norm
	}
	return &RowSet{schema: schema, geometry: geometry, rows: out}, nil
}

// MustNew is New for fixtures; it panics on invalid input.
func MustNew(schema Schema, geometry string, rows [][]any) *RowSet {
	rs, err := New(schema, geometry, rows)
	if err != nil {
		panic(err)
	}
	return rs
}

// Empty returns a RowSet with no columns and no rows.
func Empty() *RowSet {
	return &RowSet{schema: MustSchema()}
}

func normalize(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeGeometry:
		if g, ok := v.(orb.Geometry); ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) is not a %s", v, v, t)
}

// build wraps rows the caller has freshly allocated; no copy is made.
func build(schema Schema, geometry string, rows [][]any) *RowSet {
	if geometry != "" && !schema.Has(geometry) {
		geometry = ""
	}
	return &RowSet{schema: schema, geometry: geometry, rows: rows}
}

func (rs *RowSet) Len() int { return len(rs.rows) }

func (rs *RowSet) IsEmpty() bool { return len(rs.rows) == 0 }

func (rs *RowSet) Schema() Schema { return rs.schema }

func (rs *RowSet) Columns() []string { return rs.schema.Names() }

func (rs *RowSet) HasColumn(name string) bool { return rs.schema.Has(name) }

// GeometryColumn is the active geometry column, or "" if there is none.
func (rs *RowSet) GeometryColumn() string { return rs.geometry }

// Value returns the value at row i in column col; nil for null or a missing column.
func (rs *RowSet) Value(i int, col string) any {
	_, j, ok := rs.schema.Lookup(col)
	if !ok {
		return nil
	}
	return rs.rows[i][j]
}

// Geometry returns the active geometry of row i.
func (rs *RowSet) Geometry(i int) orb.Geometry {
	if rs.geometry == "" {
		return nil
	}
	g, _ := rs.Value(i, rs.geometry).(orb.Geometry)
	return g
}

// Row returns a copy of row i in schema order.
func (rs *RowSet) Row(i int) []any {
	out := make([]any, len(rs.rows[i]))
	copy(out, rs.rows[i])
	return out
}

// Record returns row i keyed by column name.
func (rs *RowSet) Record(i int) map[string]any {
	rec := make(map[string]any, rs.schema.Len())
	for j, c := range rs.schema.cols {
		rec[c.Name] = rs.rows[i][j]
	}
	return rec
}

// ColumnValues returns every value of col in row order.
func (rs *RowSet) ColumnValues(col string) []any {
	_, j, ok := rs.schema.Lookup(col)
	if !ok {
		return nil
	}
	out := make([]any, len(rs.rows))
	for i, row := range rs.rows {
		out[i] = row[j]
	}
	return out
}
