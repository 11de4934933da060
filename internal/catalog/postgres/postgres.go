// Package postgres implements catalog.Catalog on Postgres using pgx v5. A
// catalog database maps to a Postgres schema; Overwrite truncates and COPYs
// inside one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"telemetry/internal/catalog"
	"telemetry/internal/ddl"
)

const Kind = "postgres"

func init() {
	catalog.Register(Kind, func(ctx context.Context, cfg catalog.Config) (catalog.Catalog, error) {
		return Open(ctx, cfg.DSN, cfg.Name)
	})
}

// Catalog is a Postgres-backed catalog.
type Catalog struct {
	pool *pgxpool.Pool
	name string
}

// Open connects a pool. name is only used for merge-statement substitution
// and defaults to the connected database name.
func Open(ctx context.Context, dsn, name string) (*Catalog, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if name == "" {
		name = pool.Config().ConnConfig.Database
	}
	return &Catalog{pool: pool, name: name}, nil
}

func (c *Catalog) Name() string { return c.name }

func (c *Catalog) Close() error {
	c.pool.Close()
	return nil
}

// MapType maps telemetry Arrow types onto Postgres column types.
func MapType(t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.STRING:
		return "TEXT", nil
	case arrow.INT64:
		return "BIGINT", nil
	case arrow.TIMESTAMP:
		return "TIMESTAMP(3)", nil
	}
	return "", ddl.UnsupportedType(t)
}

func fqn(id catalog.Identifier) string {
	return ddl.QualifiedName(ddl.QuoteIdent, id.Database, id.Name)
}

func (c *Catalog) TableExists(ctx context.Context, id catalog.Identifier) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		schemaOf(id), id.Name).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: table exists %s: %w", id, err)
	}
	return ok, nil
}

func (c *Catalog) DropTable(ctx context.Context, id catalog.Identifier) error {
	if _, err := c.pool.Exec(ctx, "DROP TABLE IF EXISTS "+fqn(id)); err != nil {
		return fmt.Errorf("postgres: drop %s: %w", id, err)
	}
	return nil
}

// CreateTable creates the schema when needed and then the table. Postgres
// has no table location; location is ignored.
func (c *Catalog) CreateTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, location string) (catalog.Table, error) {
	if err := c.create(ctx, id, s, false); err != nil {
		return nil, err
	}
	return &table{c: c, id: id, cols: catalog.ColumnNames(s)}, nil
}

// EnsureTable is CreateTable with IF NOT EXISTS and no handle.
func (c *Catalog) EnsureTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, _ string) error {
	return c.create(ctx, id, s, true)
}

func (c *Catalog) create(ctx context.Context, id catalog.Identifier, s *arrow.Schema, ifNotExists bool) error {
	stmt, err := CreateTableSQL(id, s, ifNotExists)
	if err != nil {
		return err
	}
	if id.Database != "" {
		if _, err := c.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ddl.QuoteIdent(id.Database)); err != nil {
			return fmt.Errorf("postgres: create schema %s: %w", id.Database, err)
		}
	}
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create %s: %w", id, pgDetail(err))
	}
	return nil
}

// CreateTableSQL renders the CREATE TABLE statement for id.
func CreateTableSQL(id catalog.Identifier, s *arrow.Schema, ifNotExists bool) (string, error) {
	def, err := ddl.FromArrow(fqn(id), s, MapType)
	if err != nil {
		return "", err
	}
	return ddl.BuildCreateTableSQL(def, ddl.Options{IfNotExists: ifNotExists})
}

// DeleteTable drops a table. catalogName is not used: a pool is bound to a
// single database.
func (c *Catalog) DeleteTable(ctx context.Context, _, database, name string) error {
	return c.DropTable(ctx, catalog.Identifier{Database: database, Name: name})
}

// Exec runs one statement.
func (c *Catalog) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := c.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: exec: %w", pgDetail(err))
	}
	return nil
}

type table struct {
	c    *Catalog
	id   catalog.Identifier
	cols []string
}

func (t *table) Identifier() catalog.Identifier { return t.id }

// Overwrite truncates the table and COPYs rec into it in one transaction.
func (t *table) Overwrite(ctx context.Context, rec arrow.Record) (int64, error) {
	rows, err := catalog.Rows(rec)
	if err != nil {
		return 0, err
	}
	tx, err := t.c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+fqn(t.id)); err != nil {
		return 0, fmt.Errorf("postgres: truncate %s: %w", t.id, err)
	}
	ident := pgx.Identifier{t.id.Name}
	if t.id.Database != "" {
		ident = pgx.Identifier{t.id.Database, t.id.Name}
	}
	n, err := tx.CopyFrom(ctx, ident, t.cols, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", t.id, pgDetail(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

func schemaOf(id catalog.Identifier) string {
	if id.Database == "" {
		return "public"
	}
	return id.Database
}

// pgDetail folds the server-side detail into the error text when present.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s: %s)", err, pgErr.SQLState(), pgErr.Detail)
	}
	return err
}
