// Package athena implements catalog.Catalog as Iceberg tables managed through
// Athena DDL/DML, with the Glue Data Catalog answering existence checks and
// performing cleanup deletes.
package athena

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	athenasdk "github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
	"github.com/pkg/errors"

	"telemetry/internal/catalog"
	"telemetry/internal/ddl"
	"telemetry/internal/objstore"
	"telemetry/internal/query"
	qathena "telemetry/internal/query/athena"
)

const Kind = "athena"

// DefaultCatalogName is Athena's name for the Glue Data Catalog.
const DefaultCatalogName = "AwsDataCatalog"

// maxStatementBytes keeps INSERT batches under Athena's 256 KiB query limit.
const maxStatementBytes = 200 * 1024

func init() {
	catalog.Register(Kind, func(_ context.Context, cfg catalog.Config) (catalog.Catalog, error) {
		sess, err := session.NewSessionWithOptions(session.Options{
			Config:            aws.Config{Region: aws.String(cfg.Region)},
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating aws session")
		}
		name := cfg.Name
		if name == "" {
			name = DefaultCatalogName
		}
		svc := qathena.New(athenasdk.New(sess), name, cfg.Workgroup)
		return New(glue.New(sess), svc, Options{
			Name:           name,
			OutputLocation: cfg.OutputLocation,
		}), nil
	})
}

// Options configures a Catalog.
type Options struct {
	// Name is the Athena data catalog name.
	Name string
	// OutputLocation receives Athena DDL/DML result files.
	OutputLocation string
	// Poller waits for DDL/DML; zero value polls every second.
	Poller query.Poller
}

// Catalog runs DDL through a query.Service and reads metadata from Glue.
type Catalog struct {
	glue   glueiface.GlueAPI
	svc    query.Service
	opt    Options
	poller query.Poller
}

func New(g glueiface.GlueAPI, svc query.Service, opt Options) *Catalog {
	p := opt.Poller
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if opt.Name == "" {
		opt.Name = DefaultCatalogName
	}
	return &Catalog{glue: g, svc: svc, opt: opt, poller: p}
}

func (c *Catalog) Name() string { return c.opt.Name }

func (c *Catalog) Close() error { return nil }

// MapType maps telemetry Arrow types onto Athena/Iceberg column types.
func MapType(t arrow.DataType) (string, error) {
	switch t.ID() {
	case arrow.STRING:
		return "string", nil
	case arrow.INT64:
		return "bigint", nil
	case arrow.TIMESTAMP:
		return "timestamp", nil
	}
	return "", ddl.UnsupportedType(t)
}

func (c *Catalog) TableExists(ctx context.Context, id catalog.Identifier) (bool, error) {
	_, err := c.glue.GetTableWithContext(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(id.Database),
		Name:         aws.String(id.Name),
	})
	if err != nil {
		if isEntityNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "glue get table %s", id)
	}
	return true, nil
}

func (c *Catalog) DropTable(ctx context.Context, id catalog.Identifier) error {
	return c.run(ctx, id.Database, "DROP TABLE IF EXISTS "+ddl.QualifiedName(ddl.QuoteBacktick, id.Database, id.Name))
}

// CreateTable creates an Iceberg table at location/<name>.
func (c *Catalog) CreateTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, location string) (catalog.Table, error) {
	stmt, err := CreateTableSQL(id, s, location, false)
	if err != nil {
		return nil, err
	}
	if err := c.run(ctx, id.Database, stmt); err != nil {
		return nil, err
	}
	return &table{c: c, id: id, cols: catalog.ColumnNames(s)}, nil
}

// EnsureTable creates the table when it is missing.
func (c *Catalog) EnsureTable(ctx context.Context, id catalog.Identifier, s *arrow.Schema, location string) error {
	stmt, err := CreateTableSQL(id, s, location, true)
	if err != nil {
		return err
	}
	return c.run(ctx, id.Database, stmt)
}

// CreateTableSQL renders the Iceberg CREATE TABLE statement.
func CreateTableSQL(id catalog.Identifier, s *arrow.Schema, location string, ifNotExists bool) (string, error) {
	if location == "" {
		return "", fmt.Errorf("athena: table %s needs a location", id)
	}
	def, err := ddl.FromArrow(ddl.QualifiedName(ddl.QuoteBacktick, id.Database, id.Name), s, MapType)
	if err != nil {
		return "", err
	}
	for i := range def.Columns {
		def.Columns[i].Nullable = true
	}
	trailer := fmt.Sprintf("LOCATION '%s' TBLPROPERTIES ('table_type'='ICEBERG')",
		escape(objstore.Join(location, id.Name)))
	return ddl.BuildCreateTableSQL(def, ddl.Options{Quote: ddl.QuoteBacktick, IfNotExists: ifNotExists, Trailer: trailer})
}

var accountID = regexp.MustCompile(`^[0-9]{12}$`)

// DeleteTable removes the table from Glue. catalogName is passed as the Glue
// CatalogId only when it is an account id; otherwise the caller's account is
// used.
func (c *Catalog) DeleteTable(ctx context.Context, catalogName, database, name string) error {
	in := &glue.DeleteTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(name),
	}
	if accountID.MatchString(catalogName) {
		in.CatalogId = aws.String(catalogName)
	}
	_, err := c.glue.DeleteTableWithContext(ctx, in)
	return errors.Wrapf(err, "glue delete table %s.%s", database, name)
}

// Exec runs a statement through Athena and waits for it.
func (c *Catalog) Exec(ctx context.Context, sql string) error {
	return c.run(ctx, "", sql)
}

func (c *Catalog) run(ctx context.Context, database, sql string) error {
	id, err := c.svc.StartQueryExecution(ctx, sql, database, c.opt.OutputLocation)
	if err != nil {
		return err
	}
	exec, err := c.poller.Wait(ctx, c.svc, id)
	if err != nil {
		return err
	}
	if exec.State != query.Succeeded {
		return fmt.Errorf("athena: execution %s %s: %s", id, exec.State, exec.Reason)
	}
	return nil
}

func isEntityNotFound(err error) bool {
	aerr, ok := err.(awserr.Error)
	return ok && aerr.Code() == glue.ErrCodeEntityNotFoundException
}

type table struct {
	c    *Catalog
	id   catalog.Identifier
	cols []string
}

func (t *table) Identifier() catalog.Identifier { return t.id }

// Overwrite deletes every row and inserts rec in batches of VALUES tuples.
func (t *table) Overwrite(ctx context.Context, rec arrow.Record) (int64, error) {
	rows, err := catalog.Rows(rec)
	if err != nil {
		return 0, err
	}
	fqn := ddl.QualifiedName(quoteDouble, t.id.Database, t.id.Name)
	if err := t.c.run(ctx, t.id.Database, "DELETE FROM "+fqn); err != nil {
		return 0, err
	}
	stmts := InsertStatements(fqn, t.cols, rows, maxStatementBytes)
	for _, stmt := range stmts {
		if err := t.c.run(ctx, t.id.Database, stmt); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

// quoteDouble quotes identifiers for Athena DML (Trino syntax).
func quoteDouble(s string) string { return ddl.QuoteIdent(s) }

// InsertStatements splits rows into INSERT ... VALUES statements no longer
// than limit bytes each (a single oversized row still gets its own
// statement).
func InsertStatements(fqn string, cols []string, rows [][]any, limit int) []string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteDouble(c)
	}
	head := "INSERT INTO " + fqn + " (" + strings.Join(quoted, ", ") + ") VALUES "

	var (
		out []string
		sb  strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, sb.String())
		}
		sb.Reset()
		n = 0
	}
	for _, row := range rows {
		tuple := tupleLiteral(row)
		if n > 0 && sb.Len()+2+len(tuple) > limit {
			flush()
		}
		if n == 0 {
			sb.WriteString(head)
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
		n++
	}
	flush()
	return out
}

func tupleLiteral(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = literal(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + escape(x) + "'"
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return "TIMESTAMP '" + catalog.FormatTimestamp(x) + "'"
	default:
		return "'" + escape(fmt.Sprint(x)) + "'"
	}
}

func escape(s string) string { return strings.ReplaceAll(s, "'", "''") }
