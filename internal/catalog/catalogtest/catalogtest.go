// Package catalogtest provides an in-memory catalog and record fixtures for
// tests of packages that depend on catalog.Catalog.
package catalogtest

import (
	"context"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"telemetry/internal/catalog"
	"telemetry/internal/schema"
)

// Call records one catalog method invocation.
type Call struct {
	Op       string
	Table    catalog.Identifier
	Location string
}

// Memory is a goroutine-safe fake catalog. Set the Err fields to inject
// failures for a given operation.
type Memory struct {
	CatalogName string

	ExistsErr, DropErr, CreateErr, OverwriteErr, DeleteErr error

	mu     sync.Mutex
	tables map[catalog.Identifier][][]any
	calls  []Call
}

func NewMemory(name string) *Memory {
	return &Memory{CatalogName: name, tables: map[catalog.Identifier][][]any{}}
}

func (m *Memory) record(c Call) {
	m.calls = append(m.calls, c)
}

// Calls returns a copy of the call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Ops returns just the operation names of the call log.
func (m *Memory) Ops() []string {
	var out []string
	for _, c := range m.Calls() {
		out = append(out, c.Op)
	}
	return out
}

// Rows returns the stored rows of a table and whether it exists.
func (m *Memory) Rows(id catalog.Identifier) ([][]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables[id]
	return r, ok
}

// Put seeds a table.
func (m *Memory) Put(id catalog.Identifier, rows [][]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[id] = rows
}

func (m *Memory) Name() string { return m.CatalogName }

func (m *Memory) Close() error { return nil }

func (m *Memory) TableExists(_ context.Context, id catalog.Identifier) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: "exists", Table: id})
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	_, ok := m.tables[id]
	return ok, nil
}

func (m *Memory) DropTable(_ context.Context, id catalog.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: "drop", Table: id})
	if m.DropErr != nil {
		return m.DropErr
	}
	delete(m.tables, id)
	return nil
}

func (m *Memory) CreateTable(_ context.Context, id catalog.Identifier, _ *arrow.Schema, location string) (catalog.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: "create", Table: id, Location: location})
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.tables[id] = nil
	return &memTable{m: m, id: id}, nil
}

func (m *Memory) DeleteTable(_ context.Context, _, database, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := catalog.Identifier{Database: database, Name: name}
	m.record(Call{Op: "delete", Table: id})
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.tables, id)
	return nil
}

type memTable struct {
	m  *Memory
	id catalog.Identifier
}

func (t *memTable) Identifier() catalog.Identifier { return t.id }

func (t *memTable) Overwrite(_ context.Context, rec arrow.Record) (int64, error) {
	rows, err := catalog.Rows(rec)
	if err != nil {
		return 0, err
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.record(Call{Op: "overwrite", Table: t.id})
	if t.m.OverwriteErr != nil {
		return 0, t.m.OverwriteErr
	}
	t.m.tables[t.id] = rows
	return int64(len(rows)), nil
}

// Row is one telemetry row for Record.
type Row struct {
	EventID, EventYear, EventCode, EventNum, SessionID string

	Time time.Time

	DriverNumber, RPM, Speed, Gear, Throttle, Brake, DRS int64
}

// Record builds a record in the target schema. The caller releases it.
func Record(rows ...Row) arrow.Record {
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema.Target())
	defer b.Release()
	for _, r := range rows {
		for i, s := range []string{r.EventID, r.EventYear, r.EventCode, r.EventNum, r.SessionID} {
			b.Field(i).(*array.StringBuilder).Append(s)
		}
		b.Field(5).(*array.TimestampBuilder).Append(arrow.Timestamp(r.Time.UnixMilli()))
		for i, v := range []int64{r.DriverNumber, r.RPM, r.Speed, r.Gear, r.Throttle, r.Brake, r.DRS} {
			b.Field(6 + i).(*array.Int64Builder).Append(v)
		}
	}
	return b.NewRecord()
}
