package schema

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/go-cmp/cmp"
)

func TestTargetColumns_Order(t *testing.T) {
	want := []string{
		"event_id", "event_year", "event_code", "event_num", "session_id",
		"timeUtc", "driverNumber", "rpm", "speed", "gear", "throttle", "brake", "drs",
	}
	if diff := cmp.Diff(want, TargetColumns()); diff != "" {
		t.Fatalf("TargetColumns mismatch (-want +got):\n%s", diff)
	}
}

/*
TestTarget_MatchesColumns verifies the Arrow schema carries the 13 target
columns in order, with string metadata, a millisecond timestamp, and int64
telemetry values.
*/
func TestTarget_MatchesColumns(t *testing.T) {
	s := Target()
	cols := TargetColumns()
	if s.NumFields() != len(cols) {
		t.Fatalf("NumFields=%d; want %d", s.NumFields(), len(cols))
	}
	for i, name := range cols {
		f := s.Field(i)
		if f.Name != name {
			t.Fatalf("field[%d]=%q; want %q", i, f.Name, name)
		}
		switch {
		case i < len(MetadataColumns()):
			if f.Type.ID() != arrow.STRING {
				t.Fatalf("%s type=%s; want utf8", name, f.Type)
			}
		case name == TimeUTC:
			ts, ok := f.Type.(*arrow.TimestampType)
			if !ok || ts.Unit != arrow.Millisecond {
				t.Fatalf("%s type=%s; want timestamp[ms]", name, f.Type)
			}
		default:
			if f.Type.ID() != arrow.INT64 {
				t.Fatalf("%s type=%s; want int64", name, f.Type)
			}
		}
	}
}

func TestRanges_CoverAllButTime(t *testing.T) {
	got := map[string]Range{}
	for _, rc := range Ranges() {
		got[rc.Name] = rc.Range
	}
	for _, c := range RequiredColumns()[1:] {
		if _, ok := got[c]; !ok {
			t.Fatalf("no range for %s", c)
		}
	}
	if r := got[RPM]; !r.Contains(20000) || r.Contains(20001) {
		t.Fatalf("rpm range %+v not inclusive at 20000", r)
	}
}

func TestIsRanged(t *testing.T) {
	for _, name := range []string{DriverNumber, RPM, DRS} {
		if !IsRanged(name) {
			t.Errorf("IsRanged(%q) = false", name)
		}
	}
	for _, name := range []string{TimeUTC, EventID, "lap"} {
		if IsRanged(name) {
			t.Errorf("IsRanged(%q) = true", name)
		}
	}
}
