package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/engine"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
)

// DefaultLoadTimeout bounds a single Load when no timeout is configured.
const DefaultLoadTimeout = 30 * time.Second

type timeoutSource struct {
	next    engine.RowSource
	timeout time.Duration
}

// WithTimeout bounds every Load of next by d. An expired call returns a
// retryable *engine.LoadError wrapping engine.ErrLoadTimeout, even when
// next ignores its context. d <= 0 disables the bound.
func WithTimeout(next engine.RowSource, d time.Duration) engine.RowSource {
	if d <= 0 {
		return next
	}
	return &timeoutSource{next: next, timeout: d}
}

func (t *timeoutSource) Load(ctx context.Context, table, geometryColumn string) (*rowset.RowSet, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		rs  *rowset.RowSet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rs, err := t.next.Load(ctx, table, geometryColumn)
		ch <- result{rs, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, t.expired(table)
		}
		return r.rs, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, t.expired(table)
		}
		return nil, ctx.Err()
	}
}

func (t *timeoutSource) expired(table string) error {
	return &engine.LoadError{
		Table:     table,
		Err:       fmt.Errorf("%w after %s", engine.ErrLoadTimeout, t.timeout),
		Retryable: true,
	}
}
