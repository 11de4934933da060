// Package frame holds a small column-oriented table used between decoding and
// staging. Cells are nil, string (raw), int64 or time.Time.
package frame

// column is one named column; all columns of a Frame have the same length.
type column struct {
	Name   string
	Values []any
}

// Frame is an ordered list of equally sized columns. It is mutated in place by
// the validator and transformer and is not safe for concurrent use.
type Frame struct {
	cols []column
	rows int
}

// New builds a frame from a header and row-major records. Short records are
// padded with nil; extra cells are ignored.
func New(header []string, records [][]string) *Frame {
	f := &Frame{rows: len(records)}
	f.cols = make([]column, len(header))
	for i, h := range header {
		vals := make([]any, len(records))
		for r, rec := range records {
			if i < len(rec) {
				vals[r] = rec[i]
			}
		}
		f.cols[i] = column{Name: h, Values: vals}
	}
	return f
}

// Len returns the row count.
func (f *Frame) Len() int { return f.rows }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Name
	}
	return out
}

func (f *Frame) index(name string) int {
	for i, c := range f.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool { return f.index(name) >= 0 }

// Column returns the values of a column. The slice is shared with the frame.
func (f *Frame) Column(name string) ([]any, bool) {
	i := f.index(name)
	if i < 0 {
		return nil, false
	}
	return f.cols[i].Values, true
}

// AddNull appends a column of nils.
func (f *Frame) AddNull(name string) {
	f.cols = append(f.cols, column{Name: name, Values: make([]any, f.rows)})
}

// InsertFront prepends a column holding v in every row.
func (f *Frame) InsertFront(name string, v any) {
	vals := make([]any, f.rows)
	for i := range vals {
		vals[i] = v
	}
	f.cols = append([]column{{Name: name, Values: vals}}, f.cols...)
}

// Keep drops every column not listed in names. Order is unchanged.
func (f *Frame) Keep(names []string) {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := f.cols[:0]
	for _, c := range f.cols {
		if _, ok := want[c.Name]; ok {
			out = append(out, c)
		}
	}
	f.cols = out
}

// Reorder puts the named columns first, in the given order. Unknown names are
// skipped; unlisted columns follow in their current order.
func (f *Frame) Reorder(names []string) {
	out := make([]column, 0, len(f.cols))
	used := make([]bool, len(f.cols))
	for _, n := range names {
		if i := f.index(n); i >= 0 && !used[i] {
			out = append(out, f.cols[i])
			used[i] = true
		}
	}
	for i, c := range f.cols {
		if !used[i] {
			out = append(out, c)
		}
	}
	f.cols = out
}

// HasNulls reports whether any cell is nil.
func (f *Frame) HasNulls() bool {
	for _, c := range f.cols {
		for _, v := range c.Values {
			if v == nil {
				return true
			}
		}
	}
	return false
}
