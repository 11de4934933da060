// Package csv decodes telemetry CSV files into a frame. Header cells are
// cleaned (BOM, surrounding space, Unicode NFC); body cells are kept as raw
// strings with empty cells as nil.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"telemetry/internal/frame"
)

var (
	// ErrNoHeader is returned for an empty input.
	ErrNoHeader = errors.New("csv: missing header row")

	// ErrMalformedRow is returned when a row fails to parse or is wider than
	// the header and the skip allowance is used up.
	ErrMalformedRow = errors.New("csv: malformed row")
)

// Options configures the parser. The zero value reads comma-separated input
// with a header row.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing space from each body cell.
	TrimSpace bool

	// HeaderMap renames source headers after cleaning.
	HeaderMap map[string]string

	// MaxSkipped is how many malformed rows may be skipped before the decode
	// fails. Zero fails on the first one; negative means no limit.
	MaxSkipped int
}

// Parser holds only its options; Decode may be called concurrently.
type Parser struct{ opt Options }

func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

const utf8BOM = "\uFEFF"

// Decode reads the whole input. Rows shorter than the header are padded with
// nil. Rows that fail to parse or are wider than the header wrap
// ErrMalformedRow unless MaxSkipped allows them to be skipped and counted.
func (p *Parser) Decode(r io.Reader) (*frame.Frame, int, error) {
	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, ErrNoHeader
	}
	if err != nil {
		return nil, 0, fmt.Errorf("csv: read header: %w", err)
	}
	header = p.normalizeHeaders(header)

	var (
		rows    [][]string
		skipped int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		var bad error
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, skipped, fmt.Errorf("csv: read row: %w", err)
			}
			bad = fmt.Errorf("%w: %v", ErrMalformedRow, perr)
		} else if len(row) > len(header) {
			line, _ := cr.FieldPos(0)
			bad = fmt.Errorf("%w: line %d: %d fields, header has %d", ErrMalformedRow, line, len(row), len(header))
		}
		if bad != nil {
			skipped++
			if p.opt.MaxSkipped >= 0 && skipped > p.opt.MaxSkipped {
				return nil, skipped, bad
			}
			continue
		}
		if p.opt.TrimSpace {
			for i := range row {
				row[i] = strings.TrimSpace(row[i])
			}
		}
		rows = append(rows, row)
	}

	f := frame.New(header, rows)
	for _, name := range f.Names() {
		vals, _ := f.Column(name)
		for i, v := range vals {
			if v == "" {
				vals[i] = nil
			}
		}
	}
	return f, skipped, nil
}

// normalizeHeaders strips a leading BOM, trims and NFC-normalizes each header
// cell, then applies HeaderMap. Case is preserved. Repeated names get a
// ".1", ".2" suffix so only the first occurrence keeps the canonical name.
func (p *Parser) normalizeHeaders(h []string) []string {
	out := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, col := range h {
		c := col
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		c = norm.NFC.String(strings.TrimSpace(c))
		if m, ok := p.opt.HeaderMap[c]; ok {
			c = m
		}
		if n, dup := seen[c]; dup {
			base := c
			for {
				c = fmt.Sprintf("%s.%d", base, n)
				n++
				if _, taken := seen[c]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[c] = 1
		out[i] = c
	}
	return out
}
