package models

// MetricInfo names a selectable metric column and, when known, what it
// measures.
type MetricInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Census codes of the demographic table, in the order the dashboard
// lists them.
var demographicMetrics = []MetricInfo{
	{"pob", "Población"},
	{"p_3ymas", "Población 3 años y más"},
	{"p_12ymas", "Población 12 años y más"},
	{"p_nacoe", "Población nacida en otra entidad"},
	{"p_vivoe", "Población que vivía en otra entidad"},
	{"p_hli", "Población que habla lengua indígena"},
	{"p_hli_nhe", "Población que habla lengua indígena y no habla español"},
	{"p_hli_he", "Población que habla lengua indígena y habla español"},
	{"p_afromex", "Población afromexicana"},
	{"t_nacoe", "Porcentaje de población nacida en otra entidad"},
	{"t_vivoe", "Porcentaje de población que vivía en otra entidad"},
	{"t_hli", "Porcentaje de población que habla lengua indígena"},
	{"t_hli_nhe", "Porcentaje de población que habla lengua indígena y no habla español"},
	{"t_hli_he", "Porcentaje de población que habla lengua indígena y habla español"},
	{"t_afromex", "Porcentaje de población afromexicana"},
	{"p_p12ym_sl", "Población de 12 años y más soltera o nunca unida"},
	{"p_p12ym_c", "Población de 12 años y más casada o unida"},
	{"p_p12ym_sp", "Población de 12 años y más separada, divorciada o viuda"},
	{"p_catlc", "Población con religión católica"},
	{"p_criev", "Población con grupo religioso protestante/cristiano evangélico"},
	{"p_trsrl", "Población con otras religiones diferentes a las anteriores"},
	{"p_sinrl", "Población sin religión o sin adscripción religiosa"},
}

var metricDescriptions = func() map[string]string {
	m := make(map[string]string, len(demographicMetrics))
	for _, mi := range demographicMetrics {
		m[mi.Name] = mi.Description
	}
	return m
}()

// DemographicMetrics returns the described census metrics in dashboard order.
func DemographicMetrics() []MetricInfo {
	out := make([]MetricInfo, len(demographicMetrics))
	copy(out, demographicMetrics)
	return out
}

// DescribeMetrics pairs each column name with its description. Columns
// without one keep an empty description.
func DescribeMetrics(names []string) []MetricInfo {
	out := make([]MetricInfo, len(names))
	for i, n := range names {
		out[i] = MetricInfo{Name: n, Description: metricDescriptions[n]}
	}
	return out
}
