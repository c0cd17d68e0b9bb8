package rowset

import (
	"fmt"
	"slices"
)

// Type is the declared type of a column. It is fixed when a table is
// loaded and travels with the RowSet.
type Type int

const (
	TypeInt Type = iota
	TypeFloat
	TypeString
	TypeGeometry
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeGeometry:
		return "geometry"
	default:
		return "unknown"
	}
}

// Numeric reports whether the type can take part in sum/mean.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is an ordered list of uniquely named columns.
type Schema struct {
	cols  []Column
	index map[string]int
}

func NewSchema(cols ...Column) (Schema, error) {
	s := Schema{
		cols:  slices.Clone(cols),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return Schema{}, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := s.index[c.Name]; dup {
			return Schema{}, fmt.Errorf("duplicate column %q", c.Name)
		}
		s.index[c.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema for fixtures; it panics on invalid columns.
func MustSchema(cols ...Column) Schema {
	s, err := NewSchema(cols...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Schema) Len() int { return len(s.cols) }

func (s Schema) Columns() []Column { return slices.Clone(s.cols) }

func (s Schema) Names() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}
	return names
}

func (s Schema) Lookup(name string) (Column, int, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, -1, false
	}
	return s.cols[i], i, true
}

func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}
