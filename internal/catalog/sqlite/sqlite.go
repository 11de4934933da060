// Package sqlite implements catalog.Catalog on SQLite (modernc.org/sqlite).
// Each catalog database is an attached SQLite database; the connection pool
// is pinned to one connection so attachments and in-memory databases are
// shared by every call.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	_ "modernc.org/sqlite"

	"telemetry/internal/catalog"
	"telemetry/internal/ddl"
)

const Kind = "sqlite"

func init() {
	catalog.Register(Kind, func(ctx context.Context, cfg catalog.Config) (catalog.Catalog, error) {
		return Open(ctx, cfg.DSN, cfg.Name)
	})
}

// Catalog is a SQLite-backed catalog.
type Catalog struct {
	db   *sql.DB
	dsn  string
	name string

	mu       sync.Mutex
	attached map[string]bool
}

// Open opens dsn ("telemetry.db", "file:x.db?..." or ":memory:"). Databases
// other than "main" are attached next to the main file as "<base>_<db>.db",
// or in memory when the main database is.
func Open(ctx context.Context, dsn, name string) (*Catalog, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if name == "" {
		name = "main"
	}
	return &Catalog{db: db, dsn: dsn, name: name, attached: map[string]bool{"main": true, "": true}}, nil
}

// DB exposes the handle for tests and tooling.
func (c *Catalog) DB() *sql.DB { return c.db }

func (c *Catalog) Name() string { return c.name }

func (c *Catalog) Close() error { return c.db.Close() }

// MapType maps telemetry Arrow types onto SQLite column types. Timestamps are
// stored as text in catalog.TimestampLayout.
func MapType(t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.STRING, arrow.TIMESTAMP:
		return "TEXT", nil
	case arrow.INT64:
		return "INTEGER", nil
	}
	return "", ddl.UnsupportedType(t)
}

func fqn(id catalog.Identifier) string {
	return ddl.QualifiedName(ddl.QuoteIdent, id.Database, id.Name)
}

// attachPath is where a non-main database lives.
func (c *Catalog) attachPath(database string) string {
	if isMemory(c.dsn) {
		return ":memory:"
	}
	p := strings.TrimPrefix(c.dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	ext := filepath.Ext(p)
	return strings.TrimSuffix(p, ext) + "_" + database + ".db"
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

func (c *Catalog) attach(ctx context.Context, database string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached[database] {
		return nil
	}
	stmt := fmt.Sprintf("ATTACH DATABASE '%s' AS %s",
		strings.ReplaceAll(c.attachPath(database), "'", "''"), ddl.QuoteIdent(database))
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: attach %s: %w", database, err)
	}
	c.attached[database] = true
	return nil
}

func (c *Catalog) TableExists(ctx context.Context, id catalog.Identifier) (bool, error) {
	if err := c.attach(ctx, id.Database); err != nil {
		return false, err
	}
	master := ddl.QualifiedName(ddl.QuoteIdent, id.Database, "sqlite_master")
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT count(*) FROM "+master+" WHERE type = 'table' AND name = ?", id.Name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: table exists %s: %w", id, err)
	}
	return n > 0, nil
}

func (c *Catalog) DropTable(ctx context.Context, id catalog.Identifier) error {
	if err := c.attach(ctx, id.Database); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+fqn(id)); err != nil {
		return fmt.Errorf("sqlite: drop %s: %w", id, err)
	}
	return nil
}

// CreateTable creates the table. SQLite has no table location; location is
// ignored.
func (c *Catalog) CreateTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, _ string) (catalog.Table, error) {
	if err := c.create(ctx, id, s, false); err != nil {
		return nil, err
	}
	return &table{c: c, id: id, cols: catalog.ColumnNames(s)}, nil
}

func (c *Catalog) EnsureTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, _ string) error {
	return c.create(ctx, id, s, true)
}

func (c *Catalog) create(ctx context.Context, id catalog.Identifier, s *arrow.Schema, ifNotExists bool) error {
	if err := c.attach(ctx, id.Database); err != nil {
		return err
	}
	def, err := ddl.FromArrow(fqn(id), s, MapType)
	if err != nil {
		return err
	}
	stmt, err := ddl.BuildCreateTableSQL(def, ddl.Options{IfNotExists: ifNotExists})
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", id, err)
	}
	return nil
}

func (c *Catalog) DeleteTable(ctx context.Context, _, database, name string) error {
	return c.DropTable(ctx, catalog.Identifier{Database: database, Name: name})
}

// Exec runs sql, which may hold several statements. An open transaction is
// rolled back when any statement fails.
func (c *Catalog) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, sql); err != nil {
		// A failed multi-statement script may leave its transaction open on
		// this connection.
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// AttachAll attaches every database named in dbs, so statements from the
// query service can reference them before any table call has.
func (c *Catalog) AttachAll(ctx context.Context, dbs ...string) error {
	for _, d := range dbs {
		if err := c.attach(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

type table struct {
	c    *Catalog
	id   catalog.Identifier
	cols []string
}

func (t *table) Identifier() catalog.Identifier { return t.id }

// Overwrite deletes all rows and inserts rec with a prepared statement inside
// a single transaction.
func (t *table) Overwrite(ctx context.Context, rec arrow.Record) (int64, error) {
	rows, err := catalog.Rows(rec)
	if err != nil {
		return 0, err
	}
	quoted := make([]string, len(t.cols))
	placeholders := make([]string, len(t.cols))
	for i, col := range t.cols {
		quoted[i] = ddl.QuoteIdent(col)
		placeholders[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		fqn(t.id), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := t.c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+fqn(t.id)); err != nil {
		return 0, fmt.Errorf("sqlite: clear %s: %w", t.id, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		for i, v := range row {
			if ts, ok := v.(time.Time); ok {
				row[i] = catalog.FormatTimestamp(ts)
			}
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("sqlite: insert into %s: %w", t.id, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}
