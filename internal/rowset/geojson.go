package rowset

import (
	"github.com/paulmach/orb/geojson"
)

// ToGeoJSON renders the set as a feature collection for choropleth
// rendering. The active geometry becomes the feature geometry; other
// geometry columns are dropped and rows without geometry are skipped.
func (rs *RowSet) ToGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if rs.geometry == "" {
		return fc
	}
	for i := range rs.rows {
		g := rs.Geometry(i)
		if g == nil {
			continue
		}
		f := geojson.NewFeature(g)
		for j, c := range rs.schema.cols {
			if c.Type == TypeGeometry {
				continue
			}
			f.Properties[c.Name] = rs.rows[i][j]
		}
		fc.Append(f)
	}
	return fc
}
