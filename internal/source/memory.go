package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/engine"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/models"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
)

// ErrUnknownTable is returned by Memory for tables it does not hold.
var ErrUnknownTable = errors.New("unknown table")

// Memory serves tables held in memory. Load counts its calls, which
// makes it the usual source in tests.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*rowset.RowSet
	calls  atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*rowset.RowSet)}
}

// Put stores rs under table, replacing any previous set.
func (m *Memory) Put(table string, rs *rowset.RowSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = rs
}

// Load returns the stored set with geometryColumn made active when it is
// a geometry column of the set.
func (m *Memory) Load(ctx context.Context, table, geometryColumn string) (*rowset.RowSet, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	rs, ok := m.tables[table]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if geometryColumn == "" {
		return rs, nil
	}
	return rs.WithGeometry(geometryColumn), nil
}

// Calls is the number of Load calls so far.
func (m *Memory) Calls() int64 { return m.calls.Load() }

// Preload copies every described table from src. Tables shared by
// several descriptors are read once.
func (m *Memory) Preload(ctx context.Context, src engine.RowSource, descs ...models.Descriptor) error {
	done := make(map[string]bool, len(descs))
	for _, d := range descs {
		if done[d.TableName] {
			continue
		}
		rs, err := src.Load(ctx, d.TableName, d.GeometryColumn)
		if err != nil {
			return engine.AsLoadError(d.TableName, err)
		}
		m.Put(d.TableName, rs)
		done[d.TableName] = true
	}
	return nil
}
