package ddl

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// ColumnDef describes a single column. Name is unquoted; quoting happens at
// render time.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef holds the table name, already quoted and qualified by the caller,
// and an ordered column list.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// TypeMapper maps an Arrow type to a backend SQL type.
type TypeMapper func(arrow.DataType) (string, error)

// FromArrow builds a TableDef with one column per schema field.
func FromArrow(fqn string, s *arrow.Schema, mapType TypeMapper) (TableDef, error) {
	def := TableDef{FQN: fqn, Columns: make([]ColumnDef, 0, s.NumFields())}
	for _, f := range s.Fields() {
		typ, err := mapType(f.Type)
		if err != nil {
			return TableDef{}, fmt.Errorf("ddl: column %s: %w", f.Name, err)
		}
		def.Columns = append(def.Columns, ColumnDef{Name: f.Name, SQLType: typ, Nullable: f.Nullable})
	}
	return def, nil
}

// UnsupportedType is returned by mappers for types outside the telemetry
// schema.
func UnsupportedType(t arrow.DataType) error {
	return fmt.Errorf("unsupported arrow type %s", t)
}
