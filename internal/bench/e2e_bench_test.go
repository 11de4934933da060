package bench

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"telemetry/internal/filemeta"
	csvparser "telemetry/internal/parser/csv"
	"telemetry/internal/stage"
	"telemetry/internal/transformer"
	"telemetry/internal/transformer/builtin"
)

// telemetryCSV renders rows lines of plausible car telemetry.
func telemetryCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("timeUtc,driverNumber,rpm,speed,gear,throttle,brake,drs\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "2023-03-05T14:%02d:%02d.%03dZ,%d,%d,%d,%d,%d,%d,%d\n",
			(i/60000)%60, (i/1000)%60, i%1000,
			1+i%20, 9000+i%3000, 180+i%120, 1+i%8, 60+i%40, i%2, i%14)
	}
	return []byte(b.String())
}

// BenchmarkEndToEnd exercises the in-memory hot path of one ingestion:
// decode, validate, enrich and Arrow conversion. Catalog and query I/O are
// left out.
// Run with:
//
//	go test -run=^$ -bench ^BenchmarkEndToEnd$ -cpuprofile cpu.out -memprofile mem.out -count=1
func BenchmarkEndToEnd(b *testing.B) {
	data := telemetryCSV(10_000)
	meta, err := filemeta.Parse("2023/23001A_R.csv")
	if err != nil {
		b.Fatal(err)
	}
	dec := csvparser.NewParser(csvparser.Options{TrimSpace: true})
	mem := memory.NewGoAllocator()

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f, _, err := dec.Decode(bytes.NewReader(data))
		if err != nil {
			b.Fatalf("Decode: %v", err)
		}
		if res := (builtin.Validate{}).Apply(f); !res.IsValid {
			b.Fatalf("Validate: %v", res.Errors)
		}
		if err := transformer.Transform(f, meta.Map()); err != nil {
			b.Fatalf("Transform: %v", err)
		}
		rec, err := stage.ToRecord(mem, f)
		if err != nil {
			b.Fatalf("ToRecord: %v", err)
		}
		rec.Release()
	}
}

// BenchmarkValidate isolates the validator, which dominates EndToEnd.
func BenchmarkValidate(b *testing.B) {
	data := telemetryCSV(10_000)
	dec := csvparser.NewParser(csvparser.Options{})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		f, _, err := dec.Decode(bytes.NewReader(data))
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
		_ = builtin.Validate{}.Apply(f)
	}
}
