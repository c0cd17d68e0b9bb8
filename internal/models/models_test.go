package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDatasetType(t *testing.T) {
	cases := []struct {
		in   string
		want DatasetType
		ok   bool
	}{
		{"demographic", Demographic, true},
		{"Edafologicos", SoilUse, true},
		{" soil_use ", SoilUse, true},
		{"economicos", Economic, true},
		{"electorales", Demographic, false},
	}
	for _, tc := range cases {
		got, ok := ParseDatasetType(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestParseGranularity(t *testing.T) {
	g, ok := ParseGranularity("colonia")
	assert.True(t, ok)
	assert.Equal(t, Neighborhood, g)

	g, ok = ParseGranularity("AGEB")
	assert.True(t, ok)
	assert.Equal(t, BlockGroup, g)

	_, ok = ParseGranularity("municipio")
	assert.False(t, ok)
}

func TestNewFiltersDerivesTooltips(t *testing.T) {
	f := NewFilters(SoilUse, nil, Neighborhood, ColSurface)
	assert.Equal(t, []string{"ID_AGEB", "NOMBRE_COLONIA", "USO_SUELO", "DNSDD_D", "NIVELES", "ALTURA"}, f.TooltipColumns())

	// callers cannot mutate the filter's tooltips
	cols := f.TooltipColumns()
	cols[0] = "x"
	assert.Equal(t, "ID_AGEB", f.TooltipColumns()[0])

	d := NewFilters(Demographic, Year(2020), Block, "pob")
	assert.Equal(t, []string{"ID_AGEB", "NOMBRE_COLONIA", "alc", "amb_loc", "area_km2"}, d.TooltipColumns())
	assert.Equal(t, 2020, *d.Year)
}

func TestNewFiltersCopiesYear(t *testing.T) {
	y := 2010
	f := NewFilters(Demographic, &y, Block, "")
	y = 2020
	assert.Equal(t, 2010, *f.Year)
}

func TestDemographicMetrics(t *testing.T) {
	metrics := DemographicMetrics()
	assert.Len(t, metrics, 22)
	assert.Equal(t, MetricInfo{Name: "pob", Description: "Población"}, metrics[0])
	assert.Equal(t, "p_sinrl", metrics[len(metrics)-1].Name)

	// Callers get a copy
	metrics[0].Description = "changed"
	assert.Equal(t, "Población", DemographicMetrics()[0].Description)
}

func TestDescribeMetrics(t *testing.T) {
	got := DescribeMetrics([]string{"t_hli", "SUPERFICIE"})
	assert.Equal(t, []MetricInfo{
		{Name: "t_hli", Description: "Porcentaje de población que habla lengua indígena"},
		{Name: "SUPERFICIE"},
	}, got)
	assert.Empty(t, DescribeMetrics(nil))
}
