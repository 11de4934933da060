package ddl

import (
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"

	"telemetry/internal/schema"
)

func mapTest(t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.STRING:
		return "TEXT", nil
	case arrow.INT64:
		return "BIGINT", nil
	case arrow.TIMESTAMP:
		return "TIMESTAMP", nil
	}
	return "", UnsupportedType(t)
}

// TestBuildCreateTableSQL verifies rendering and input validation with
// table-driven subtests.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		opt         Options
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{SQLType: "INT"}}},
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "missing SQLType",
		},
		{
			name: "if not exists with not null",
			def: TableDef{FQN: `"s"."t"`, Columns: []ColumnDef{
				{Name: "id", SQLType: "BIGINT"},
				{Name: "note", SQLType: "TEXT", Nullable: true},
			}},
			opt:     Options{IfNotExists: true},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"s\".\"t\" (\n  \"id\" BIGINT NOT NULL,\n  \"note\" TEXT\n)",
		},
		{
			name:    "backticks and trailer",
			def:     TableDef{FQN: "`db`.`t`", Columns: []ColumnDef{{Name: "id", SQLType: "bigint", Nullable: true}}},
			opt:     Options{Quote: QuoteBacktick, Trailer: "LOCATION 's3://b/t'"},
			wantSQL: "CREATE TABLE `db`.`t` (\n  `id` bigint\n) LOCATION 's3://b/t'",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCreateTableSQL(tt.def, tt.opt)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("err=%v; want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantSQL {
				t.Fatalf("sql mismatch\n got: %q\nwant: %q", got, tt.wantSQL)
			}
		})
	}
}

func TestFromArrow_TelemetrySchema(t *testing.T) {
	t.Parallel()

	def, err := FromArrow(QualifiedName(QuoteIdent, "", "stg"), schema.Target(), mapTest)
	if err != nil {
		t.Fatal(err)
	}
	if def.FQN != `"stg"` || len(def.Columns) != 13 {
		t.Fatalf("def=%+v", def)
	}
	if def.Columns[5].Name != "timeUtc" || def.Columns[5].SQLType != "TIMESTAMP" {
		t.Fatalf("timeUtc column=%+v", def.Columns[5])
	}

	bad := arrow.NewSchema([]arrow.Field{{Name: "b", Type: arrow.FixedWidthTypes.Boolean}}, nil)
	if _, err := FromArrow("t", bad, mapTest); err == nil || !strings.Contains(err.Error(), "column b") {
		t.Fatalf("err=%v", err)
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("got %s", got)
	}
	if got := QualifiedName(QuoteBacktick, "a", "b"); got != "`a`.`b`" {
		t.Fatalf("got %s", got)
	}
}
