// Package builtin contains the telemetry validation and coercion steps.
package builtin

import (
	"fmt"

	"telemetry/internal/frame"
	"telemetry/internal/schema"
)

// Result is the outcome of a validation pass. Errors holds one message per
// failed check, in the order the checks ran.
type Result struct {
	IsValid bool
	Errors  []string
}

func (r *Result) fail(format string, args ...any) {
	r.IsValid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Validate checks a frame against the telemetry schema. Apply reshapes and
// retypes the frame in place and never stops at the first failure.
type Validate struct {
	// Ranges overrides schema.Ranges() when set.
	Ranges []schema.RangedColumn
}

// Apply runs every check and returns the accumulated result.
func (v Validate) Apply(f *frame.Frame) Result {
	res := Result{IsValid: true}
	required := schema.RequiredColumns()

	f.Keep(required)

	for _, col := range required {
		if !f.Has(col) {
			f.AddNull(col)
			res.fail("Missing column '%s' added with nulls.", col)
		}
	}

	f.Reorder(required)

	if CoerceColumn(f, schema.TimeUTC, "timestamp") > 0 {
		res.fail("Some timeUtc values could not be changed to datetime.")
	}

	ints := Coerce{Types: make(map[string]string, len(required)-1)}
	for _, col := range required {
		if col != schema.TimeUTC {
			ints.Types[col] = "int"
		}
	}
	nulls := ints.Retype(f)
	for _, col := range required {
		if bad := nulls[col]; bad > 0 {
			res.fail("Failed to cast '%s' to int64: %d missing or non-numeric value(s)", col, bad)
		}
	}

	if f.HasNulls() {
		res.fail("Missing or invalid values found in the data.")
	}

	ranges := v.Ranges
	if ranges == nil {
		ranges = schema.Ranges()
	}
	for _, rc := range ranges {
		vals, ok := f.Column(rc.Name)
		if !ok {
			continue
		}
		for _, val := range vals {
			n, isInt := val.(int64)
			if isInt && !rc.Range.Contains(n) {
				res.fail("Values out of range in column '%s'. Expected between %d and %d.", rc.Name, rc.Range.Min, rc.Range.Max)
				break
			}
		}
	}

	return res
}
