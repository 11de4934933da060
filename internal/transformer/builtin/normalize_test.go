package builtin

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"telemetry/internal/frame"
)

/*
TestNormalizeApply_TableDriven verifies that Normalize.Apply trims surrounding
whitespace, repairs the mis-decoded "Â " sequence and leaves non-string cells
untouched.
*/
func TestNormalizeApply_TableDriven(t *testing.T) {
	tests := []struct {
		name string
		in   []any
		want []any
	}{
		{name: "no_strings_no_change", in: []any{int64(1), nil}, want: []any{int64(1), nil}},
		{name: "simple_trim_spaces", in: []any{" 12 ", "\t7\n"}, want: []any{"12", "7"}},
		{name: "mojibake_nbsp", in: []any{"1Â 000", "Â 5"}, want: []any{"1 000", "5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := frame.New([]string{"c"}, make([][]string, len(tc.in)))
			vals, _ := f.Column("c")
			copy(vals, tc.in)
			Normalize{}.Apply(f)
			got, _ := f.Column("c")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}
