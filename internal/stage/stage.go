// Package stage writes a transformed telemetry frame into a per-session
// staging table, replacing any previous staging table of the same name.
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"

	"telemetry/internal/catalog"
	"telemetry/internal/frame"
	"telemetry/internal/schema"
	"telemetry/internal/transformer/builtin"
)

// ErrEmptyDataset is returned when the frame has no rows to stage.
var ErrEmptyDataset = errors.New("stage: dataset has no event_id rows")

// TableName is the staging table for an event session.
func TableName(eventID, sessionID string) string {
	return "stg_" + eventID + "_" + sessionID
}

// Loader stages frames into a catalog.
type Loader struct {
	log zerolog.Logger
	mem memory.Allocator
}

// NewLoader returns a Loader that logs through log.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log, mem: memory.NewGoAllocator()}
}

// Result describes a completed load.
type Result struct {
	Table catalog.Identifier
	Rows  int64
	// Replaced is true when a previous staging table was dropped.
	Replaced bool
}

// Load stages f into database and returns the staging table name.
func (l *Loader) Load(ctx context.Context, f *frame.Frame, cat catalog.Catalog, database, location string) (string, error) {
	res, err := l.LoadResult(ctx, f, cat, database, location)
	return res.Table.Name, err
}

// LoadResult is Load returning the full Result.
func (l *Loader) LoadResult(ctx context.Context, f *frame.Frame, cat catalog.Catalog, database, location string) (Result, error) {
	ev, ok := f.Column(schema.EventID)
	if !ok || f.Len() == 0 {
		return Result{}, ErrEmptyDataset
	}
	eventID, _ := ev[0].(string)
	ss, ok := f.Column(schema.SessionID)
	if !ok {
		return Result{}, fmt.Errorf("stage: missing column %s", schema.SessionID)
	}
	sessionID, _ := ss[0].(string)
	if eventID == "" || sessionID == "" {
		return Result{}, fmt.Errorf("stage: row 0 has no %s/%s", schema.EventID, schema.SessionID)
	}

	rec, err := ToRecord(l.allocator(), f)
	if err != nil {
		return Result{}, err
	}
	defer rec.Release()

	id := catalog.Identifier{Database: database, Name: TableName(eventID, sessionID)}
	res := Result{Table: id}
	lg := l.log.With().Str("table", id.String()).Logger()

	exists, err := cat.TableExists(ctx, id)
	if err != nil {
		return res, &catalog.OperationError{Op: "exists", Table: id, Err: err}
	}
	if exists {
		if err := cat.DropTable(ctx, id); err != nil {
			return res, &catalog.OperationError{Op: "drop", Table: id, Err: err}
		}
		res.Replaced = true
		lg.Debug().Msg("dropped previous staging table")
	}
	tbl, err := cat.CreateTable(ctx, id, schema.Target(), location)
	if err != nil {
		return res, &catalog.OperationError{Op: "create", Table: id, Err: err}
	}
	n, err := tbl.Overwrite(ctx, rec)
	if err != nil {
		return res, &catalog.OperationError{Op: "overwrite", Table: id, Err: err}
	}
	res.Rows = n
	lg.Info().Int64("rows", n).Bool("replaced", res.Replaced).Msg("staged")
	return res, nil
}

func (l *Loader) allocator() memory.Allocator {
	if l.mem == nil {
		return memory.NewGoAllocator()
	}
	return l.mem
}

// ToRecord projects f onto the target schema. Cells that do not fit the
// column type become nulls. The caller releases the record.
func ToRecord(mem memory.Allocator, f *frame.Frame) (arrow.Record, error) {
	sc := schema.Target()
	cols := make([][]any, sc.NumFields())
	for i, fd := range sc.Fields() {
		c, ok := f.Column(fd.Name)
		if !ok {
			return nil, fmt.Errorf("stage: missing column %s", fd.Name)
		}
		cols[i] = c
	}

	b := array.NewRecordBuilder(mem, sc)
	defer b.Release()
	for i, fd := range sc.Fields() {
		vals := cols[i]
		switch fb := b.Field(i).(type) {
		case *array.StringBuilder:
			fb.Reserve(len(vals))
			for _, v := range vals {
				switch x := v.(type) {
				case nil:
					fb.AppendNull()
				case string:
					fb.Append(x)
				default:
					fb.Append(fmt.Sprint(x))
				}
			}
		case *array.Int64Builder:
			fb.Reserve(len(vals))
			for _, v := range vals {
				if n, ok := builtin.ParseInt64(v); ok {
					fb.Append(n)
				} else {
					fb.AppendNull()
				}
			}
		case *array.TimestampBuilder:
			fb.Reserve(len(vals))
			for _, v := range vals {
				if ts, ok := builtin.ParseTime(v); ok {
					fb.Append(arrow.Timestamp(ts.UnixMilli()))
				} else {
					fb.AppendNull()
				}
			}
		default:
			return nil, fmt.Errorf("stage: column %s: unexpected builder %T", fd.Name, fb)
		}
	}
	return b.NewRecord(), nil
}
