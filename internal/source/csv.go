// Package source provides row sources for the query engine: a directory
// of CSV exports, an in-memory snapshot and a timeout decorator.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/geo"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/logging"
	"github.com/JazzDataSolutions/CoyoacanDataAnalysis/internal/rowset"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

var tableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// nullTokens are the cell values read as null, besides the empty string.
var nullTokens = map[string]bool{"null": true, "nan": true, "none": true}

var wktPrefixes = []string{
	"SRID=", "POINT", "LINESTRING", "POLYGON", "MULTIPOINT",
	"MULTILINESTRING", "MULTIPOLYGON", "GEOMETRYCOLLECTION",
}

// CSVDir reads tables from <dir>/<table>.csv. The header names the
// columns; geometries are WKT or EWKT. Every Load reads the file again.
type CSVDir struct {
	dir    string
	logger *slog.Logger
}

func NewCSVDir(dir string, logger *slog.Logger) *CSVDir {
	return &CSVDir{dir: dir, logger: logging.OrDefault(logger)}
}

// Path returns the file backing table.
func (c *CSVDir) Path(table string) string {
	return filepath.Join(c.dir, table+".csv")
}

func (c *CSVDir) Load(ctx context.Context, table, geometryColumn string) (*rowset.RowSet, error) {
	start := time.Now()
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	// 1. Read records
	f, err := os.Open(c.Path(table))
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		c.logger.Warn("table file is empty", "table", table)
		return rowset.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	body, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	geomIdx := -1
	if geometryColumn != "" {
		for i, h := range header {
			if h == geometryColumn {
				geomIdx = i
			}
		}
		if geomIdx == -1 {
			return nil, fmt.Errorf("geometry column %q not in table %q", geometryColumn, table)
		}
	}

	// 2. Infer schema
	cols := make([]rowset.Column, len(header))
	for j, name := range header {
		t := rowset.TypeGeometry
		if j != geomIdx {
			t = inferType(body, j)
		}
		cols[j] = rowset.Column{Name: name, Type: t}
	}
	schema, err := rowset.NewSchema(cols...)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", table, err)
	}

	// 3. Parallel conversion over contiguous chunks
	rows := make([][]any, len(body))
	numWorkers := runtime.NumCPU()
	if numWorkers > len(body) {
		numWorkers = len(body)
	}
	g, gctx := errgroup.WithContext(ctx)
	if numWorkers > 0 {
		chunkSize := len(body) / numWorkers
		for w := 0; w < numWorkers; w++ {
			s := w * chunkSize
			e := s + chunkSize
			if w == numWorkers-1 {
				e = len(body)
			}
			g.Go(func() error {
				for i := s; i < e; i++ {
					if i%1024 == 0 {
						if err := gctx.Err(); err != nil {
							return err
						}
					}
					row, err := convertRecord(body[i], cols)
					if err != nil {
						// Line numbers count the header.
						return fmt.Errorf("line %d: %w", i+2, err)
					}
					rows[i] = row
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("table %q: %w", table, err)
	}

	rs, err := rowset.New(schema, geometryColumn, rows)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", table, err)
	}
	c.logger.Debug("table loaded", "table", table, "rows", rs.Len(), "columns", schema.Len(), "elapsed", time.Since(start))
	return rs, nil
}

// --- PARSERS ---

func isNull(s string) bool {
	return s == "" || nullTokens[strings.ToLower(s)]
}

func looksLikeWKT(s string) bool {
	up := strings.ToUpper(s)
	for _, p := range wktPrefixes {
		if strings.HasPrefix(up, p) {
			return true
		}
	}
	return false
}

// inferType picks the narrowest type that fits every non-null cell of
// column j: int, then float, then geometry, then string.
func inferType(body [][]string, j int) rowset.Type {
	canInt, canFloat, canGeom := true, true, true
	seen := false
	for _, rec := range body {
		s := strings.TrimSpace(rec[j])
		if isNull(s) {
			continue
		}
		seen = true
		if hasLeadingZero(s) {
			// Identifiers such as block group codes keep their zeros.
			canInt, canFloat = false, false
		}
		if canInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				canInt = false
			}
		}
		if canFloat && !canInt {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				canFloat = false
			}
		}
		if canGeom && !looksLikeWKT(s) {
			canGeom = false
		}
		if !canInt && !canFloat && !canGeom {
			return rowset.TypeString
		}
	}
	switch {
	case !seen:
		return rowset.TypeString
	case canInt:
		return rowset.TypeInt
	case canFloat:
		return rowset.TypeFloat
	case canGeom:
		return rowset.TypeGeometry
	}
	return rowset.TypeString
}

func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

func convertRecord(rec []string, cols []rowset.Column) ([]any, error) {
	out := make([]any, len(cols))
	for j, c := range cols {
		s := strings.TrimSpace(rec[j])
		if c.Type != rowset.TypeString && isNull(s) {
			continue
		}
		switch c.Type {
		case rowset.TypeInt:
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", c.Name, err)
			}
			out[j] = v
		case rowset.TypeFloat:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", c.Name, err)
			}
			out[j] = v
		case rowset.TypeGeometry:
			g, err := geo.ParseWKT(s)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", c.Name, err)
			}
			if g != nil {
				out[j] = g
			}
		default:
			if isNull(s) {
				continue
			}
			out[j] = rec[j]
		}
	}
	return out, nil
}
