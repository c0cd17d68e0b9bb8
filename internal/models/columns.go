package models

// Column names of the PostGIS tables behind the dashboard.
const (
	ColYear = "anio"

	// polygon layer (poligonos_manzanas_agebs_colonias)
	ColBlockID          = "ID_MANZANA"
	ColBlockGeom        = "GEOM_MANZANA"
	ColBlockGroupID     = "ID_AGEB"
	ColBlockGroupGID    = "GID_AGEB"
	ColBlockGroupGeom   = "GEOM_AGEB"
	ColNeighborhoodID   = "ID_COLONIA"
	ColNeighborhoodName = "NOMBRE_COLONIA"
	ColNeighborhoodGeom = "GEOM_COLONIA"

	// demographic data
	ColDataBlockGroup = "ageb"

	// soil-use data
	ColLandUse = "USO_SUELO"
	ColSurface = "SUPERFICIE"
	ColDensity = "DNSDD_D"
	ColFloors  = "NIVELES"
	ColHeight  = "ALTURA"
)
