package rowset

import (
	"fmt"
	"io"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/geo"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paulmach/orb"
)

// Geometry columns are written as WKB binaries tagged with the GeoArrow
// extension name so readers such as GeoPandas can decode them.
const (
	geoArrowExtension = "geoarrow.wkb"
	geometryMetaKey   = "geometry_column"
)

// ArrowSchema maps the RowSet schema to an Arrow schema.
func (rs *RowSet) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, rs.schema.Len())
	for i, c := range rs.schema.cols {
		f := arrow.Field{Name: c.Name, Nullable: true}
		switch c.Type {
		case TypeInt:
			f.Type = arrow.PrimitiveTypes.Int64
		case TypeFloat:
			f.Type = arrow.PrimitiveTypes.Float64
		case TypeString:
			f.Type = arrow.BinaryTypes.String
		case TypeGeometry:
			f.Type = arrow.BinaryTypes.Binary
			f.Metadata = arrow.NewMetadata(
				[]string{"ARROW:extension:name"},
				[]string{geoArrowExtension},
			)
		}
		fields[i] = f
	}
	md := arrow.NewMetadata([]string{geometryMetaKey}, []string{rs.geometry})
	return arrow.NewSchema(fields, &md)
}

// ToArrow builds a single Arrow record with every row. The caller owns
// the record and must Release it.
func (rs *RowSet) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, rs.ArrowSchema())
	defer b.Release()

	for j, c := range rs.schema.cols {
		fb := b.Field(j)
		fb.Reserve(len(rs.rows))
		for _, row := range rs.rows {
			v := row[j]
			if v == nil {
				fb.AppendNull()
				continue
			}
			switch c.Type {
			case TypeInt:
				fb.(*array.Int64Builder).Append(v.(int64))
			case TypeFloat:
				fb.(*array.Float64Builder).Append(v.(float64))
			case TypeString:
				fb.(*array.StringBuilder).Append(v.(string))
			case TypeGeometry:
				wkb, err := geo.WKB(v.(orb.Geometry))
				if err != nil {
					return nil, fmt.Errorf("column %q: %w", c.Name, err)
				}
				fb.(*array.BinaryBuilder).Append(wkb)
			}
		}
	}
	return b.NewRecord(), nil
}

// WriteArrowIPC streams the RowSet to w in the Arrow IPC stream format.
func (rs *RowSet) WriteArrowIPC(w io.Writer) error {
	mem := memory.NewGoAllocator()
	rec, err := rs.ToArrow(mem)
	if err != nil {
		return err
	}
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return wr.Close()
}
