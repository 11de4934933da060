// Package duckdb implements catalog.Catalog on DuckDB. Table data is written
// as a parquet file under the table location (local or s3://) and loaded with
// read_parquet, so the location holds a portable copy of every staging table.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	_ "github.com/duckdb/duckdb-go/v2"

	"telemetry/internal/catalog"
	"telemetry/internal/ddl"
	"telemetry/internal/objstore"
)

const Kind = "duckdb"

func init() {
	catalog.Register(Kind, func(ctx context.Context, cfg catalog.Config) (catalog.Catalog, error) {
		opt := Options{DSN: cfg.DSN, Name: cfg.Name, Location: cfg.Location}
		if objstore.IsS3(cfg.Location) {
			sess, err := session.NewSessionWithOptions(session.Options{
				Config:            aws.Config{Region: aws.String(cfg.Region)},
				SharedConfigState: session.SharedConfigEnable,
			})
			if err != nil {
				return nil, fmt.Errorf("duckdb: aws session: %w", err)
			}
			opt.Store = objstore.New(s3.New(sess))
		}
		return Open(ctx, opt)
	})
}

// Options configures Open.
type Options struct {
	// DSN is a database file path; empty means in-memory.
	DSN string
	// Name is the catalog name used in merge statements; defaults to the
	// DuckDB database name.
	Name string
	// Location is the default data location for tables.
	Location string
	// Store writes data files; nil uses a store without an S3 client.
	Store *objstore.Store
}

// Catalog is a DuckDB-backed catalog.
type Catalog struct {
	db       *sql.DB
	name     string
	location string
	store    *objstore.Store

	httpfsOnce sync.Once
	httpfsErr  error
}

func Open(ctx context.Context, opt Options) (*Catalog, error) {
	db, err := sql.Open("duckdb", opt.DSN)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: ping: %w", err)
	}
	name := opt.Name
	if name == "" {
		if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&name); err != nil {
			db.Close()
			return nil, fmt.Errorf("duckdb: current_database: %w", err)
		}
	}
	store := opt.Store
	if store == nil {
		store = objstore.New(nil)
	}
	return &Catalog{db: db, name: name, location: opt.Location, store: store}, nil
}

func (c *Catalog) DB() *sql.DB { return c.db }

func (c *Catalog) Name() string { return c.name }

func (c *Catalog) Close() error { return c.db.Close() }

// MapType maps telemetry Arrow types onto DuckDB column types.
func MapType(t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.STRING:
		return "VARCHAR", nil
	case arrow.INT64:
		return "BIGINT", nil
	case arrow.TIMESTAMP:
		return "TIMESTAMPTZ", nil
	}
	return "", ddl.UnsupportedType(t)
}

func fqn(id catalog.Identifier) string {
	return ddl.QualifiedName(ddl.QuoteIdent, id.Database, id.Name)
}

// dataPath is the parquet file backing a table.
func dataPath(location string, id catalog.Identifier) string {
	if location == "" {
		location = os.TempDir()
	}
	return objstore.Join(location, id.Database, id.Name, "data.parquet")
}

func (c *Catalog) TableExists(ctx context.Context, id catalog.Identifier) (bool, error) {
	schemaName := id.Database
	if schemaName == "" {
		schemaName = "main"
	}
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		schemaName, id.Name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("duckdb: table exists %s: %w", id, err)
	}
	return n > 0, nil
}

// DropTable drops the table and removes its data file under the catalog's
// default location.
func (c *Catalog) DropTable(ctx context.Context, id catalog.Identifier) error {
	if _, err := c.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+fqn(id)); err != nil {
		return fmt.Errorf("duckdb: drop %s: %w", id, err)
	}
	if err := c.store.Delete(ctx, dataPath(c.location, id)); err != nil {
		return fmt.Errorf("duckdb: drop %s data: %w", id, err)
	}
	return nil
}

func (c *Catalog) CreateTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, location string) (catalog.Table, error) {
	if err := c.create(ctx, id, s, false); err != nil {
		return nil, err
	}
	if location == "" {
		location = c.location
	}
	return &table{c: c, id: id, cols: catalog.ColumnNames(s), path: dataPath(location, id)}, nil
}

func (c *Catalog) EnsureTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, _ string) error {
	return c.create(ctx, id, s, true)
}

func (c *Catalog) create(ctx context.Context, id catalog.Identifier, s *arrow.Schema, ifNotExists bool) error {
	if id.Database != "" {
		if _, err := c.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+ddl.QuoteIdent(id.Database)); err != nil {
			return fmt.Errorf("duckdb: create schema %s: %w", id.Database, err)
		}
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
		return fmt.Errorf("duckdb: create %s: %w", id, err)
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
		return fmt.Errorf("duckdb: exec: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, sql); err != nil {
		// A failed multi-statement script may leave its transaction open.
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		return fmt.Errorf("duckdb: exec: %w", err)
	}
	return nil
}

// loadHTTPFS enables s3:// reads once per catalog, using the AWS default
// credential chain.
func (c *Catalog) loadHTTPFS(ctx context.Context) error {
	c.httpfsOnce.Do(func() {
		for _, stmt := range []string{
			"INSTALL httpfs",
			"LOAD httpfs",
			"CREATE SECRET IF NOT EXISTS telemetry_s3 (TYPE S3, PROVIDER credential_chain)",
		} {
			if _, err := c.db.ExecContext(ctx, stmt); err != nil {
				c.httpfsErr = fmt.Errorf("duckdb: %s: %w", stmt, err)
				return
			}
		}
	})
	return c.httpfsErr
}

type table struct {
	c    *Catalog
	id   catalog.Identifier
	cols []string
	path string
}

func (t *table) Identifier() catalog.Identifier { return t.id }

// Overwrite replaces the data file and reloads the table from it in one
// transaction.
func (t *table) Overwrite(ctx context.Context, rec arrow.Record) (int64, error) {
	data, err := EncodeParquet(rec)
	if err != nil {
		return 0, err
	}
	if err := t.c.store.Put(ctx, t.path, data); err != nil {
		return 0, err
	}
	src := t.path
	if objstore.IsS3(src) {
		if err := t.c.loadHTTPFS(ctx); err != nil {
			return 0, err
		}
	} else {
		src = objstore.LocalPath(src)
	}

	quoted := make([]string, len(t.cols))
	for i, col := range t.cols {
		quoted[i] = ddl.QuoteIdent(col)
	}
	cols := strings.Join(quoted, ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM read_parquet('%s')",
		fqn(t.id), cols, cols, strings.ReplaceAll(src, "'", "''"))

	tx, err := t.c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+fqn(t.id)); err != nil {
		return 0, fmt.Errorf("duckdb: clear %s: %w", t.id, err)
	}
	res, err := tx.ExecContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("duckdb: load %s from %s: %w", t.id, t.path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = rec.NumRows()
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("duckdb: commit: %w", err)
	}
	return n, nil
}
