package builtin

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"telemetry/internal/frame"
	"telemetry/internal/schema"
)

var telemetryHeader = []string{"timeUtc", "driverNumber", "rpm", "speed", "gear", "throttle", "brake", "drs"}

func goodRows() [][]string {
	return [][]string{
		{"2023-03-05T14:02:01.100Z", "44", "11000", "287", "7", "100", "0", "12"},
		{"2023-03-05T14:02:01.300Z", "44", "11250", "291", "7", "100", "0", "12"},
	}
}

func TestValidate_AllGood(t *testing.T) {
	f := frame.New(telemetryHeader, goodRows())
	res := Validate{}.Apply(f)
	if !res.IsValid || len(res.Errors) != 0 {
		t.Fatalf("got %+v; want valid", res)
	}
	rpm, _ := f.Column("rpm")
	if rpm[1] != int64(11250) {
		t.Fatalf("rpm not coerced: %#v", rpm)
	}
	ts, _ := f.Column("timeUtc")
	if got := ts[0].(time.Time); got.Nanosecond() != 100*int(time.Millisecond) {
		t.Fatalf("timeUtc=%v", got)
	}
}

/*
TestValidate_DropsExtrasAndReorders verifies that unknown columns are removed
and the required columns end up in canonical order, without that alone being
an error.
*/
func TestValidate_DropsExtrasAndReorders(t *testing.T) {
	header := []string{"drs", "lap", "brake", "throttle", "gear", "speed", "rpm", "driverNumber", "timeUtc"}
	rows := [][]string{{"0", "3", "1", "50", "3", "120", "9000", "1", "2023-03-05 14:02:01"}}
	f := frame.New(header, rows)

	res := Validate{}.Apply(f)
	if !res.IsValid {
		t.Fatalf("errors: %v", res.Errors)
	}
	if diff := cmp.Diff(schema.RequiredColumns(), f.Names()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}

func TestValidate_MissingColumn(t *testing.T) {
	rows := goodRows()
	for i := range rows {
		rows[i] = rows[i][:7]
	}
	f := frame.New(telemetryHeader[:7], rows)

	res := Validate{}.Apply(f)
	if res.IsValid {
		t.Fatal("want invalid")
	}
	if len(res.Errors) == 0 || res.Errors[0] != "Missing column 'drs' added with nulls." {
		t.Fatalf("errors=%v", res.Errors)
	}
	if !f.Has("drs") || len(f.Names()) != 8 {
		t.Fatalf("drs not added: %v", f.Names())
	}
	if !containsMsg(res.Errors, "Missing or invalid values found in the data.") {
		t.Fatalf("missing generic null error: %v", res.Errors)
	}
}

func TestValidate_RangeViolation(t *testing.T) {
	rows := goodRows()
	rows[1][2] = "25000"
	f := frame.New(telemetryHeader, rows)

	res := Validate{}.Apply(f)
	want := []string{"Values out of range in column 'rpm'. Expected between 0 and 20000."}
	if res.IsValid {
		t.Fatal("want invalid")
	}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
}

/*
TestValidate_AccumulatesEverything feeds a frame that fails every check and
verifies one message per failed check, in check order, with no early exit.
*/
func TestValidate_AccumulatesEverything(t *testing.T) {
	header := []string{"timeUtc", "driverNumber", "rpm", "speed", "gear", "throttle", "brake"}
	rows := [][]string{
		{"not-a-time", "0", "x", "500", "9", "120", "2"},
		{"2023-03-05T14:02:01Z", "44", "100", "100", "1", "10", "0"},
	}
	f := frame.New(header, rows)

	res := Validate{}.Apply(f)
	want := []string{
		"Missing column 'drs' added with nulls.",
		"Some timeUtc values could not be changed to datetime.",
		"Failed to cast 'rpm' to int64: 1 missing or non-numeric value(s)",
		"Failed to cast 'drs' to int64: 2 missing or non-numeric value(s)",
		"Missing or invalid values found in the data.",
		"Values out of range in column 'driverNumber'. Expected between 1 and 99.",
		"Values out of range in column 'speed'. Expected between 0 and 400.",
		"Values out of range in column 'gear'. Expected between 0 and 8.",
		"Values out of range in column 'throttle'. Expected between 0 and 110.",
		"Values out of range in column 'brake'. Expected between 0 and 1.",
	}
	if res.IsValid {
		t.Fatal("want invalid")
	}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
}

func TestValidate_CustomRanges(t *testing.T) {
	f := frame.New(telemetryHeader, goodRows())
	res := Validate{Ranges: []schema.RangedColumn{{Name: "speed", Range: schema.Range{Min: 0, Max: 100}}}}.Apply(f)
	if res.IsValid || !strings.Contains(res.Errors[0], "'speed'") {
		t.Fatalf("got %+v", res)
	}
}

func containsMsg(msgs []string, want string) bool {
	for _, m := range msgs {
		if m == want {
			return true
		}
	}
	return false
}
