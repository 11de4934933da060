// Package ddl renders CREATE TABLE statements from an Arrow schema. Backends
// supply the type mapping and identifier quoting for their dialect.
package ddl

import (
	"fmt"
	"strings"
)

// Options tune rendering for a dialect.
type Options struct {
	// Quote quotes a column name. Nil means QuoteIdent.
	Quote func(string) string

	IfNotExists bool

	// Trailer is appended after the closing parenthesis verbatim, e.g. a
	// LOCATION or TBLPROPERTIES clause.
	Trailer string
}

// QuoteIdent wraps name in double quotes, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteBacktick quotes for Hive-style DDL.
func QuoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QualifiedName quotes and dot-joins the non-empty parts.
func QualifiedName(quote func(string) string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, quote(p))
		}
	}
	return strings.Join(out, ".")
}

// BuildCreateTableSQL renders:
//
//	CREATE TABLE [IF NOT EXISTS] <FQN> (
//	  <name> <type> [NOT NULL],
//	  ...
//	)[ <trailer>]
func BuildCreateTableSQL(t TableDef, opt Options) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	quote := opt.Quote
	if quote == nil {
		quote = QuoteIdent
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}
		col := quote(name) + " " + typ
		if !c.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if opt.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(fqn)
	sb.WriteString(" (\n  ")
	sb.WriteString(strings.Join(cols, ",\n  "))
	sb.WriteString("\n)")
	if tr := strings.TrimSpace(opt.Trailer); tr != "" {
		sb.WriteString(" ")
		sb.WriteString(tr)
	}
	return sb.String(), nil
}
