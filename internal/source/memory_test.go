package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/engine"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoGeometries() *rowset.RowSet {
	schema := rowset.MustSchema(
		rowset.Column{Name: "id", Type: rowset.TypeInt},
		rowset.Column{Name: "GEOM_MANZANA", Type: rowset.TypeGeometry},
		rowset.Column{Name: "GEOM_AGEB", Type: rowset.TypeGeometry},
	)
	return rowset.MustNew(schema, "GEOM_MANZANA", [][]any{{1, orb.Point{0, 0}, orb.Point{1, 1}}})
}

func TestMemoryLoad(t *testing.T) {
	m := NewMemory()
	m.Put("poligonos", twoGeometries())
	ctx := context.Background()

	rs, err := m.Load(ctx, "poligonos", "GEOM_AGEB")
	require.NoError(t, err)
	assert.Equal(t, "GEOM_AGEB", rs.GeometryColumn())
	assert.Equal(t, orb.Point{1, 1}, rs.Geometry(0))

	_, err = m.Load(ctx, "otra", "geom")
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Equal(t, int64(2), m.Calls())
}

func TestMemoryPreload(t *testing.T) {
	backing := NewMemory()
	backing.Put("poligonos", twoGeometries())
	backing.Put("datos", twoGeometries())

	m := NewMemory()
	err := m.Preload(context.Background(), backing,
		models.Descriptor{TableName: "poligonos", GeometryColumn: "GEOM_MANZANA"},
		models.Descriptor{TableName: "poligonos", GeometryColumn: "GEOM_AGEB"},
		models.Descriptor{TableName: "datos", GeometryColumn: "GEOM_MANZANA"},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(2), backing.Calls(), "shared tables are read once")

	rs, err := m.Load(context.Background(), "poligonos", "GEOM_AGEB")
	require.NoError(t, err)
	assert.Equal(t, "GEOM_AGEB", rs.GeometryColumn())

	err = m.Preload(context.Background(), backing, models.Descriptor{TableName: "falta"})
	var le *engine.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "falta", le.Table)
}

// blockingSource ignores its context and never answers before release.
type blockingSource struct{ release chan struct{} }

func (b blockingSource) Load(context.Context, string, string) (*rowset.RowSet, error) {
	<-b.release
	return rowset.Empty(), nil
}

func TestWithTimeoutExpires(t *testing.T) {
	b := blockingSource{release: make(chan struct{})}
	defer close(b.release)
	src := WithTimeout(b, 20*time.Millisecond)

	_, err := src.Load(context.Background(), "lenta", "geom")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrLoadTimeout)
	assert.True(t, engine.IsRetryable(err))

	var le *engine.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "lenta", le.Table)
}

func TestWithTimeoutPassesResults(t *testing.T) {
	m := NewMemory()
	m.Put("poligonos", twoGeometries())
	src := WithTimeout(m, time.Second)

	rs, err := src.Load(context.Background(), "poligonos", "GEOM_MANZANA")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	_, err = src.Load(context.Background(), "otra", "geom")
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.False(t, engine.IsRetryable(err))
}

func TestWithTimeoutCallerCancel(t *testing.T) {
	b := blockingSource{release: make(chan struct{})}
	defer close(b.release)
	src := WithTimeout(b, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Load(ctx, "lenta", "geom")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, engine.ErrLoadTimeout))
}

func TestWithTimeoutDisabled(t *testing.T) {
	m := NewMemory()
	assert.Same(t, engine.RowSource(m), WithTimeout(m, 0))
}
