package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"telemetry/internal/catalog"
	"telemetry/internal/catalog/catalogtest"
	"telemetry/internal/filemeta"
	"telemetry/internal/frame"
	"telemetry/internal/transformer"
	"telemetry/internal/transformer/builtin"
)

var header = []string{"timeUtc", "driverNumber", "rpm", "speed", "gear", "throttle", "brake", "drs"}

// transformed returns a validated and transformed frame for 23001A_Q1.
func transformed(t *testing.T, records ...[]string) *frame.Frame {
	t.Helper()
	f := frame.New(header, records)
	if res := (builtin.Validate{}).Apply(f); !res.IsValid {
		t.Fatalf("fixture invalid: %v", res.Errors)
	}
	meta, err := filemeta.Parse("raw/23001A_Q1.csv")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := transformer.Transform(f, meta.Map()); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	return f
}

func twoRows(t *testing.T) *frame.Frame {
	return transformed(t,
		[]string{"2023-03-05T14:02:01.250Z", "44", "11000", "290", "7", "100", "0", "0"},
		[]string{"2023-03-05T14:02:01.500Z", "1", "11500", "295", "8", "100", "0", "12"},
	)
}

func TestLoad_FreshTable(t *testing.T) {
	cat := catalogtest.NewMemory("AwsDataCatalog")
	l := NewLoader(zerolog.Nop())

	name, err := l.Load(context.Background(), twoRows(t), cat, "telemetry", "s3://lake/staging")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if name != "stg_23001A_Q1" {
		t.Fatalf("name = %q", name)
	}
	if diff := cmp.Diff([]string{"exists", "create", "overwrite"}, cat.Ops()); diff != "" {
		t.Fatalf("ops (-want +got):\n%s", diff)
	}
	if loc := cat.Calls()[1].Location; loc != "s3://lake/staging" {
		t.Fatalf("create location = %q", loc)
	}

	rows, ok := cat.Rows(catalog.Identifier{Database: "telemetry", Name: name})
	if !ok || len(rows) != 2 {
		t.Fatalf("rows = %v (exists %v)", rows, ok)
	}
	want := []any{
		"23001A", "23", "A", "001", "Q1",
		time.Date(2023, 3, 5, 14, 2, 1, 250e6, time.UTC),
		int64(44), int64(11000), int64(290), int64(7), int64(100), int64(0), int64(0),
	}
	if diff := cmp.Diff(want, rows[0]); diff != "" {
		t.Fatalf("row 0 (-want +got):\n%s", diff)
	}
}

/*
TestLoad_Idempotent loads the same frame twice: the second load must drop
and recreate the staging table so it holds exactly the frame's rows.
*/
func TestLoad_Idempotent(t *testing.T) {
	cat := catalogtest.NewMemory("c")
	l := NewLoader(zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.Load(ctx, twoRows(t), cat, "telemetry", "loc"); err != nil {
			t.Fatalf("Load #%d: %v", i, err)
		}
	}
	want := []string{"exists", "create", "overwrite", "exists", "drop", "create", "overwrite"}
	if diff := cmp.Diff(want, cat.Ops()); diff != "" {
		t.Fatalf("ops (-want +got):\n%s", diff)
	}
	rows, _ := cat.Rows(catalog.Identifier{Database: "telemetry", Name: "stg_23001A_Q1"})
	if len(rows) != 2 {
		t.Fatalf("rows after reload = %d, want 2", len(rows))
	}
}

func TestLoad_EmptyDataset(t *testing.T) {
	cat := catalogtest.NewMemory("c")
	l := NewLoader(zerolog.Nop())

	empty := transformed(t)
	if _, err := l.Load(context.Background(), empty, cat, "d", "loc"); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("err = %v, want ErrEmptyDataset", err)
	}
	noMeta := frame.New(header, [][]string{{"2023-03-05T14:02:01Z", "1", "1", "1", "1", "1", "0", "0"}})
	if _, err := l.Load(context.Background(), noMeta, cat, "d", "loc"); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("err = %v, want ErrEmptyDataset", err)
	}
	if len(cat.Calls()) != 0 {
		t.Fatalf("catalog touched: %v", cat.Ops())
	}
}

func TestLoad_OperationErrors(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		op     string
		inject func(*catalogtest.Memory)
	}{
		{"exists", func(m *catalogtest.Memory) { m.ExistsErr = boom }},
		{"drop", func(m *catalogtest.Memory) { m.DropErr = boom }},
		{"create", func(m *catalogtest.Memory) { m.CreateErr = boom }},
		{"overwrite", func(m *catalogtest.Memory) { m.OverwriteErr = boom }},
	}
	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			cat := catalogtest.NewMemory("c")
			cat.Put(catalog.Identifier{Database: "d", Name: "stg_23001A_Q1"}, nil)
			tc.inject(cat)

			_, err := NewLoader(zerolog.Nop()).Load(context.Background(), twoRows(t), cat, "d", "loc")
			var opErr *catalog.OperationError
			if !errors.As(err, &opErr) {
				t.Fatalf("err = %v, want *catalog.OperationError", err)
			}
			if opErr.Op != tc.op || opErr.Table.Name != "stg_23001A_Q1" {
				t.Fatalf("op error = %+v", opErr)
			}
			if !errors.Is(err, boom) {
				t.Fatalf("cause lost: %v", err)
			}
		})
	}
}

func TestToRecord_TypesAndNulls(t *testing.T) {
	f := twoRows(t)
	rpm, _ := f.Column("rpm")
	rpm[1] = nil

	rec, err := ToRecord(memory.NewGoAllocator(), f)
	if err != nil {
		t.Fatalf("ToRecord: %v", err)
	}
	defer rec.Release()

	if rec.NumCols() != 13 || rec.NumRows() != 2 {
		t.Fatalf("shape = %dx%d", rec.NumRows(), rec.NumCols())
	}
	ts := rec.Column(5).(*array.Timestamp)
	if got := ts.Value(0); got != arrow.Timestamp(time.Date(2023, 3, 5, 14, 2, 1, 250e6, time.UTC).UnixMilli()) {
		t.Fatalf("timeUtc = %d", got)
	}
	if unit := rec.Schema().Field(5).Type.(*arrow.TimestampType).Unit; unit != arrow.Millisecond {
		t.Fatalf("unit = %v", unit)
	}
	rpmCol := rec.Column(7).(*array.Int64)
	if rpmCol.Value(0) != 11000 || !rpmCol.IsNull(1) {
		t.Fatalf("rpm = %v", rpmCol)
	}
}

func TestToRecord_MissingColumn(t *testing.T) {
	f := frame.New([]string{"event_id"}, [][]string{{"x"}})
	if _, err := ToRecord(memory.NewGoAllocator(), f); err == nil {
		t.Fatalf("expected error")
	}
}
