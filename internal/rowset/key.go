package rowset

import (
	"strconv"
	"strings"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/geo"
	"github.com/paulmach/orb"
)

// Key encodes values into a string usable as a map key. Values that are
// equal under Equal produce the same key; every component is type tagged
// and length prefixed so distinct tuples never collide.
func Key(vals ...any) string {
	var b strings.Builder
	for _, v := range vals {
		writeKeyPart(&b, v)
	}
	return b.String()
}

func writeKeyPart(b *strings.Builder, v any) {
	var tag byte
	var s string
	switch x := v.(type) {
	case nil:
		b.WriteString("n;")
		return
	case int64:
		tag, s = 'i', strconv.FormatInt(x, 10)
	case int:
		tag, s = 'i', strconv.Itoa(x)
	case float64:
		tag, s = 'f', strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		tag, s = 's', x
	case orb.Geometry:
		tag, s = 'g', geo.Key(x)
	default:
		tag, s = '?', ""
	}
	b.WriteByte(tag)
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
	b.WriteByte(';')
}

// valuesEqual compares two normalized values.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ga, aGeom := a.(orb.Geometry)
	gb, bGeom := b.(orb.Geometry)
	if aGeom || bGeom {
		return aGeom && bGeom && orb.Equal(ga, gb)
	}
	return a == b
}
