package catalog

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Rows converts a record into row-major Go values: string, int64, time.Time
// (UTC) or nil. Only the column types of the telemetry schema are supported.
func Rows(rec arrow.Record) ([][]any, error) {
	n := int(rec.NumRows())
	out := make([][]any, n)
	for i := range out {
		out[i] = make([]any, rec.NumCols())
	}
	for c, col := range rec.Columns() {
		switch a := col.(type) {
		case *array.String:
			for r := 0; r < n; r++ {
				if a.IsValid(r) {
					out[r][c] = a.Value(r)
				}
			}
		case *array.Int64:
			for r := 0; r < n; r++ {
				if a.IsValid(r) {
					out[r][c] = a.Value(r)
				}
			}
		case *array.Timestamp:
			unit := a.DataType().(*arrow.TimestampType).Unit
			for r := 0; r < n; r++ {
				if a.IsValid(r) {
					out[r][c] = a.Value(r).ToTime(unit).UTC()
				}
			}
		default:
			return nil, fmt.Errorf("catalog: unsupported column %q of type %s", rec.ColumnName(c), col.DataType())
		}
	}
	return out, nil
}

// ColumnNames returns the field names of s in order.
func ColumnNames(s *arrow.Schema) []string {
	out := make([]string, s.NumFields())
	for i, f := range s.Fields() {
		out[i] = f.Name
	}
	return out
}

// TimestampLayout is the text form used by backends without a native
// timestamp type.
const TimestampLayout = "2006-01-02 15:04:05.000"

// FormatTimestamp renders t in TimestampLayout, in UTC.
func FormatTimestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }
