// Package catalog abstracts the table catalog the stage loader writes into
// and the merge coordinator cleans up. Backends register themselves by kind
// from init functions; import telemetry/internal/catalog/all to enable all of
// them.
package catalog

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Identifier names a table inside a database (schema).
type Identifier struct {
	Database string
	Name     string
}

func (id Identifier) String() string { return id.Database + "." + id.Name }

// Table is a handle returned by CreateTable.
type Table interface {
	Identifier() Identifier
	// Overwrite replaces the table contents with rec and returns the number
	// of rows written.
	Overwrite(ctx context.Context, rec arrow.Record) (int64, error)
}

// Catalog is the subset of table-catalog operations the loader needs.
type Catalog interface {
	// Name is the catalog name substituted into merge statements.
	Name() string
	TableExists(ctx context.Context, id Identifier) (bool, error)
	DropTable(ctx context.Context, id Identifier) error
	CreateTable(ctx context.Context, id Identifier, schema *arrow.Schema, location string) (Table, error)
	Close() error
}

// Deleter removes a table by catalog, database and name. It is how the merge
// coordinator drops a staging table once its rows are in the fact table.
type Deleter interface {
	DeleteTable(ctx context.Context, catalog, database, name string) error
}

// Ensurer creates a table when it does not exist yet. SQL backends implement
// it so a fresh database can receive merges.
type Ensurer interface {
	EnsureTable(ctx context.Context, id Identifier, schema *arrow.Schema, location string) error
}

// Execer runs a single SQL statement against the catalog's database. The local
// query service uses it to execute merge statements.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// OperationError is returned by the stage loader for any failed catalog call.
type OperationError struct {
	Op    string
	Table Identifier
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("catalog %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
