package rowset

// --- PROJECTION ---

// Select keeps the named columns that exist, in the order given.
// Unknown and repeated names are ignored. The active geometry survives
// only if its column is selected.
func (rs *RowSet) Select(cols ...string) *RowSet {
	picked := make([]Column, 0, len(cols))
	idx := make([]int, 0, len(cols))
	seen := make(map[string]bool, len(cols))
	for _, name := range cols {
		if seen[name] {
			continue
		}
		c, j, ok := rs.schema.Lookup(name)
		if !ok {
			continue
		}
		seen[name] = true
		picked = append(picked, c)
		idx = append(idx, j)
	}

	rows := make([][]any, len(rs.rows))
	for i, row := range rs.rows {
		out := make([]any, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		rows[i] = out
	}
	return build(MustSchema(picked...), rs.geometry, rows)
}

// Missing returns the names in cols that are not columns of rs.
func (rs *RowSet) Missing(cols ...string) []string {
	var out []string
	for _, c := range cols {
		if !rs.schema.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// WithGeometry makes col the active geometry column. If col is absent or
// not a geometry column the current geometry is kept.
func (rs *RowSet) WithGeometry(col string) *RowSet {
	c, _, ok := rs.schema.Lookup(col)
	if !ok || c.Type != TypeGeometry {
		return rs.clone(rs.geometry)
	}
	return rs.clone(col)
}

func (rs *RowSet) clone(geometry string) *RowSet {
	rows := make([][]any, len(rs.rows))
	copy(rows, rs.rows)
	return build(rs.schema, geometry, rows)
}

// --- SELECTION ---

// Filter keeps the rows for which keep returns true.
func (rs *RowSet) Filter(keep func(r Row) bool) *RowSet {
	rows := make([][]any, 0, len(rs.rows))
	for i, row := range rs.rows {
		if keep(Row{set: rs, i: i}) {
			rows = append(rows, row)
		}
	}
	return build(rs.schema, rs.geometry, rows)
}

// Distinct drops rows whose values over cols repeat an earlier row. With
// no cols the whole tuple is compared. Unknown columns are ignored; if
// none of cols exist the rows are returned as they are.
func (rs *RowSet) Distinct(cols ...string) *RowSet {
	idx := rs.indexes(cols)
	if len(idx) == 0 {
		return rs.clone(rs.geometry)
	}
	seen := make(map[string]struct{}, len(rs.rows))
	rows := make([][]any, 0, len(rs.rows))
	vals := make([]any, len(idx))
	for _, row := range rs.rows {
		for k, j := range idx {
			vals[k] = row[j]
		}
		key := Key(vals...)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}
	return build(rs.schema, rs.geometry, rows)
}

// Slice returns rows [offset, offset+limit) clamped to the set.
func (rs *RowSet) Slice(offset, limit int) *RowSet {
	if offset < 0 {
		offset = 0
	}
	if offset > len(rs.rows) {
		offset = len(rs.rows)
	}
	end := offset + limit
	if limit < 0 || end > len(rs.rows) {
		end = len(rs.rows)
	}
	rows := make([][]any, end-offset)
	copy(rows, rs.rows[offset:end])
	return build(rs.schema, rs.geometry, rows)
}

func (rs *RowSet) indexes(cols []string) []int {
	if len(cols) == 0 {
		idx := make([]int, rs.schema.Len())
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, 0, len(cols))
	for _, c := range cols {
		if _, j, ok := rs.schema.Lookup(c); ok {
			idx = append(idx, j)
		}
	}
	return idx
}

// --- COMPARISON ---

// Equal reports whether both sets have the same schema, geometry column
// and rows in the same order.
func (rs *RowSet) Equal(other *RowSet) bool {
	if rs == other {
		return true
	}
	if rs == nil || other == nil {
		return false
	}
	if rs.geometry != other.geometry || rs.schema.Len() != other.schema.Len() || len(rs.rows) != len(other.rows) {
		return false
	}
	for i, c := range rs.schema.cols {
		if other.schema.cols[i] != c {
			return false
		}
	}
	for i, row := range rs.rows {
		for j, v := range row {
			if !valuesEqual(v, other.rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// Row is a read-only view of one row, handed to Filter predicates.
type Row struct {
	set *RowSet
	i   int
}

func (r Row) Get(col string) any { return r.set.Value(r.i, col) }

func (r Row) Index() int { return r.i }
