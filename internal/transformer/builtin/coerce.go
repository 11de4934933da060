package builtin

import (
	"math"
	"strconv"
	"strings"
	"time"

	"telemetry/internal/frame"
)

// TimeLayouts are tried in order by ParseTime. Values without a zone are
// read as UTC.
var TimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02",
}

// ParseTime converts a cell to a UTC time. Strings are trimmed; empty strings
// and unknown layouts report false.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range TimeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ParseInt64 converts a cell to int64. Decimal strings and whole-valued floats
// ("44.0") are accepted; fractions and non-numeric text are not.
func ParseInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return wholeFloat(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return wholeFloat(f)
		}
	}
	return 0, false
}

func wholeFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Coerce retypes columns in place. Types maps a column to "int" or "timestamp";
// cells that do not convert become nil. Columns absent from the frame are
// skipped.
type Coerce struct {
	Types map[string]string
}

// Apply retypes the frame, discarding the nil counts.
func (c Coerce) Apply(f *frame.Frame) { c.Retype(f) }

// Retype returns, per column, how many cells were nil after conversion.
func (c Coerce) Retype(f *frame.Frame) map[string]int {
	nulls := make(map[string]int, len(c.Types))
	for col, typ := range c.Types {
		if !f.Has(col) {
			continue
		}
		nulls[col] = CoerceColumn(f, col, typ)
	}
	return nulls
}

// CoerceColumn retypes a single column and returns the nil count afterwards.
func CoerceColumn(f *frame.Frame, col, typ string) int {
	vals, ok := f.Column(col)
	if !ok {
		return 0
	}
	n := 0
	for i, v := range vals {
		var (
			out any
			ok  bool
		)
		switch typ {
		case "int":
			var x int64
			x, ok = ParseInt64(v)
			out = x
		case "timestamp":
			var ts time.Time
			ts, ok = ParseTime(v)
			out = ts
		default:
			continue
		}
		if ok {
			vals[i] = out
		} else {
			vals[i] = nil
			n++
		}
	}
	return n
}
