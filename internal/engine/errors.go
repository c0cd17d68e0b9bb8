package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
)

// RowSource loads a whole table with one designated geometry column.
// Implementations return a fresh RowSet on every call.
type RowSource interface {
	Load(ctx context.Context, table, geometryColumn string) (*rowset.RowSet, error)
}

// ErrLoadTimeout is wrapped by LoadError when a row source call exceeds its deadline.
var ErrLoadTimeout = errors.New("row source load timed out")

// LoadError reports a row source failure: unreachable source, malformed
// query or a timeout. Retryable is set when repeating the call may succeed.
type LoadError struct {
	Table     string
	Err       error
	Retryable bool
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load table %q: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AsLoadError wraps err as a LoadError for table unless it already is one.
func AsLoadError(table string, err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{
		Table:     table,
		Err:       err,
		Retryable: errors.Is(err, ErrLoadTimeout) || errors.Is(err, context.DeadlineExceeded),
	}
}

// IsRetryable reports whether err is a LoadError worth retrying.
func IsRetryable(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Retryable
}
