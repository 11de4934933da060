// Package schema holds the fixed telemetry table layout shared by the
// validator, the transformer, the stage loader and every catalog backend.
//
// The staging table and the fact table carry the same 13 columns in the same
// order; the merge statements under internal/merge/sql rely on it.
package schema

import "github.com/apache/arrow-go/v18/arrow"

// Metadata column names, in target-table order.
const (
	EventID   = "event_id"
	EventYear = "event_year"
	EventCode = "event_code"
	EventNum  = "event_num"
	SessionID = "session_id"
)

// Telemetry column names as they appear in the source CSV.
const (
	TimeUTC      = "timeUtc"
	DriverNumber = "driverNumber"
	RPM          = "rpm"
	Speed        = "speed"
	Gear         = "gear"
	Throttle     = "throttle"
	Brake        = "brake"
	DRS          = "drs"
)

// Range is an inclusive [Min, Max] bound for an integer column.
type Range struct {
	Min int64
	Max int64
}

// Contains reports whether v lies within the inclusive bounds.
func (r Range) Contains(v int64) bool { return v >= r.Min && v <= r.Max }

// RangedColumn pairs a column with its allowed range. A slice keeps the
// check order stable so error lists are deterministic.
type RangedColumn struct {
	Name  string
	Range Range
}

// RequiredColumns is the canonical order of the telemetry columns a source
// file must provide.
func RequiredColumns() []string {
	return []string{TimeUTC, DriverNumber, RPM, Speed, Gear, Throttle, Brake, DRS}
}

// MetadataColumns lists the key-derived columns in target-table order.
func MetadataColumns() []string {
	return []string{EventID, EventYear, EventCode, EventNum, SessionID}
}

// TargetColumns is the full 13-column order of the staging and fact tables.
func TargetColumns() []string {
	return append(MetadataColumns(), RequiredColumns()...)
}

// Ranges are the value bounds checked by the validator, in check order.
func Ranges() []RangedColumn {
	return []RangedColumn{
		{Name: DriverNumber, Range: Range{Min: 1, Max: 99}},
		{Name: RPM, Range: Range{Min: 0, Max: 20000}},
		{Name: Speed, Range: Range{Min: 0, Max: 400}},
		{Name: Gear, Range: Range{Min: 0, Max: 8}},
		{Name: Throttle, Range: Range{Min: 0, Max: 110}},
		{Name: Brake, Range: Range{Min: 0, Max: 1}},
		{Name: DRS, Range: Range{Min: 0, Max: 20}},
	}
}

// IsRanged reports whether name has a validator range.
func IsRanged(name string) bool {
	for _, r := range Ranges() {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Target returns the Arrow schema of the staging and fact tables. All fields
// are nullable, matching the Iceberg table definition; the validator is what
// guarantees there are no nulls.
func Target() *arrow.Schema {
	fields := make([]arrow.Field, 0, 13)
	for _, name := range MetadataColumns() {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	fields = append(fields, arrow.Field{Name: TimeUTC, Type: arrow.FixedWidthTypes.Timestamp_ms, Nullable: true})
	for _, name := range RequiredColumns()[1:] {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int64, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}
