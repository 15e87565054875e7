// Package memstore is an in-memory gaudit.Store. Entities keep their tracking state
// between persists the way an ORM session does, and every table is a slice of rows.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/internal/buffer"
	"github.com/mickamy/gaudit/internal/tracker"
	"github.com/mickamy/gaudit/record"
)

// KeyFields are the entity fields treated as store-generated integer keys.
var KeyFields = []string{"ID", "Id"}

type staged struct {
	table string
	row   *record.Row
}

// Store keeps entities and audit rows in memory. It is safe for concurrent use.
type Store struct {
	*tracker.Tracker

	mu       sync.Mutex
	staged   *buffer.Buffer[staged]
	entities map[string][]*record.Row
	tables   map[string][]*record.Row
	seq      map[string]int64
}

var _ gaudit.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		Tracker:  tracker.New(),
		staged:   buffer.NewBuffer[staged](),
		entities: make(map[string][]*record.Row),
		tables:   make(map[string][]*record.Row),
		seq:      make(map[string]int64),
	}
}

type recordSet struct {
	s     *Store
	table string
}

func (r recordSet) Add(row *record.Row) {
	r.s.staged.Add(staged{table: r.table, row: row.Clone()})
}

// RecordSet stages rows for table until the next Persist.
func (s *Store) RecordSet(table string) gaudit.RecordSet {
	return recordSet{s: s, table: table}
}

// Persist applies pending entity changes and staged rows. Inserted entities with a
// zero integer key get the next sequence value, and staged rows without an AuditId
// get one per table.
func (s *Store) Persist(ctx context.Context, acceptAll bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	changes, err := s.Changes()
	if err != nil {
		return 0, fmt.Errorf("memstore: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		switch c.State {
		case gaudit.Added:
			s.assignKey(c.Entity, c.Value)
			cur, err := record.Snapshot(c.Value)
			if err != nil {
				return 0, fmt.Errorf("memstore: %w", err)
			}
			s.entities[c.Entity] = append(s.entities[c.Entity], cur)
		case gaudit.Modified:
			s.replace(c.Entity, keyOf(c.Original), c.Current)
		case gaudit.Deleted:
			s.replace(c.Entity, keyOf(c.Original), nil)
		}
	}
	rows := s.staged.Drain()
	for _, r := range rows {
		if !r.row.Has(gaudit.ColumnAuditID) {
			s.seq[r.table]++
			r.row.Set(gaudit.ColumnAuditID, record.Int(s.seq[r.table]))
		}
		s.tables[r.table] = append(s.tables[r.table], r.row)
	}
	s.Flushed(changes, acceptAll)
	return len(changes) + len(rows), nil
}

// Query filters the rows of table with p in memory.
func (s *Store) Query(ctx context.Context, table string, p *expr.Predicate) ([]*record.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*record.Row
	for _, row := range s.tables[table] {
		ok, err := p.Match(row)
		if err != nil {
			return nil, fmt.Errorf("memstore: query %s: %w", table, err)
		}
		if ok {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

// Rows returns a copy of the rows of a record-set table.
func (s *Store) Rows(table string) []*record.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*record.Row, len(s.tables[table]))
	for i, r := range s.tables[table] {
		out[i] = r.Clone()
	}
	return out
}

// Entities returns a copy of the persisted rows of an entity.
func (s *Store) Entities(entity string) []*record.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*record.Row, len(s.entities[entity]))
	for i, r := range s.entities[entity] {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) assignKey(entity string, v any) {
	rv := reflect.ValueOf(v).Elem()
	for _, name := range KeyFields {
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanSet() || !f.CanInt() || f.Int() != 0 {
			continue
		}
		s.seq[entity]++
		f.SetInt(s.seq[entity])
		return
	}
}

// replace swaps the persisted row with the given key; a nil row deletes it.
func (s *Store) replace(entity string, key record.Value, row *record.Row) {
	rows := s.entities[entity]
	for i, r := range rows {
		if !keyOf(r).Equal(key) {
			continue
		}
		if row == nil {
			s.entities[entity] = append(rows[:i], rows[i+1:]...)
		} else {
			rows[i] = row.Clone()
		}
		return
	}
	if row != nil {
		s.entities[entity] = append(rows, row.Clone())
	}
}

func keyOf(row *record.Row) record.Value {
	for _, name := range KeyFields {
		if v, ok := row.Get(name); ok {
			return v
		}
	}
	return record.Null()
}
