// Package sqlstore is a gaudit.Store on database/sql. Each Persist runs in one
// transaction; staged audit rows are buffered and written just before commit.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/internal/buffer"
	"github.com/mickamy/gaudit/internal/ident"
	"github.com/mickamy/gaudit/internal/query"
	"github.com/mickamy/gaudit/internal/tracker"
	"github.com/mickamy/gaudit/record"
)

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store persists tracked entities to snake_case tables named after their type.
type Store struct {
	*tracker.Tracker

	db      *sql.DB
	dialect query.Dialect
	staged  *buffer.Buffer[gaudit.AuditRow]
	logger  *zap.Logger
}

var _ gaudit.Store = (*Store)(nil)

// New wraps db. driver names the SQL flavor: "pgx", "postgres" or "mysql".
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	d, ok := query.DialectFor(driver)
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	s := &Store{
		Tracker: tracker.New(),
		db:      db,
		dialect: d,
		staged:  buffer.NewBuffer[gaudit.AuditRow](),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type recordSet struct {
	s     *Store
	table string
}

func (r recordSet) Add(row *record.Row) {
	r.s.staged.Add(gaudit.AuditRow{Table: r.table, Data: row.Clone()})
}

func (s *Store) RecordSet(table string) gaudit.RecordSet {
	return recordSet{s: s, table: table}
}

// tx wraps a *sql.Tx and buffers audit rows until commit.
type tx struct {
	*sql.Tx
	d   query.Dialect
	buf *buffer.Buffer[gaudit.AuditRow]
	ctx context.Context
}

func (s *Store) beginTx(ctx context.Context) (*tx, error) {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin: %w", err)
	}
	return &tx{Tx: t, d: s.dialect, buf: buffer.NewBuffer[gaudit.AuditRow](), ctx: ctx}, nil
}

// Commit flushes buffered audit rows into their tables before commit.
func (t *tx) Commit() (int64, error) {
	n, err := t.flush()
	if err != nil {
		return 0, err
	}
	if err := t.Tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlstore: commit: %w", err)
	}
	return n, nil
}

func (t *tx) flush() (int64, error) {
	var n int64
	for _, r := range t.buf.Drain() {
		q, args := query.Insert(t.d, r.Table, r.Data)
		res, err := t.ExecContext(t.ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlstore: insert into %s: %w", r.Table, err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += affected
		}
	}
	return n, nil
}

// Rollback clears buffered audit rows and rolls back the transaction.
func (t *tx) Rollback() error {
	t.buf.Reset()
	return t.Tx.Rollback()
}

// Persist writes pending entity changes and staged rows in one transaction. Staged
// rows are dropped when it fails.
func (s *Store) Persist(ctx context.Context, acceptAll bool) (int, error) {
	changes, err := s.Changes()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: %w", err)
	}
	rows := s.staged.Drain()
	if len(changes) == 0 && len(rows) == 0 {
		if acceptAll {
			s.AcceptAllChanges()
		}
		return 0, nil
	}

	t, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, c := range changes {
		affected, err := s.apply(t, c)
		if err != nil {
			_ = t.Rollback()
			return 0, err
		}
		n += affected
	}
	t.buf.Add(rows...)
	flushed, err := t.Commit()
	if err != nil {
		_ = t.Rollback()
		return 0, err
	}
	n += flushed

	s.Flushed(changes, acceptAll)
	s.logger.Debug("persisted", zap.Int("changes", len(changes)), zap.Int("rows", len(rows)), zap.Int64("affected", n))
	return int(n), nil
}

func (s *Store) apply(t *tx, c tracker.Change) (int64, error) {
	table, err := resolveTableName(c.Value)
	if err != nil {
		return 0, err
	}
	current := c.Current.Rename(ident.Snake)
	switch c.State {
	case gaudit.Added:
		return s.insert(t, table, c.Value, current)
	case gaudit.Modified:
		original := c.Original.Rename(ident.Snake)
		keyCol, key := pickID(table, original)
		if keyCol == "" {
			return 0, fmt.Errorf("sqlstore: update %s: no key column", table)
		}
		set := changedColumns(current, original)
		if set.Len() == 0 {
			set = current
		}
		q, args := query.Update(s.dialect, table, set, keyCol, key.Any())
		return exec(t, q, args)
	case gaudit.Deleted:
		original := c.Original.Rename(ident.Snake)
		keyCol, key := pickID(table, original)
		if keyCol == "" {
			return 0, fmt.Errorf("sqlstore: delete %s: no key column", table)
		}
		q, args := query.Delete(s.dialect, table, keyCol, key.Any())
		return exec(t, q, args)
	}
	return 0, nil
}

// insert leaves a zero integer key to the database and writes the generated value
// back into the entity.
func (s *Store) insert(t *tx, table string, entity any, row *record.Row) (int64, error) {
	keyCol, key := pickID(table, row)
	generated := keyCol != "" && key.Kind() == record.KindInt && key.Int64() == 0
	if generated {
		row = without(row, keyCol)
	}
	q, args := query.Insert(s.dialect, table, row)

	if !generated {
		return exec(t, q, args)
	}
	if s.dialect.SupportsReturning() {
		q, _ = query.AppendReturningAll(q)
		rows, err := t.QueryContext(t.ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlstore: insert into %s: %w", table, err)
		}
		m, n, err := scanOne(rows)
		if err != nil {
			return 0, fmt.Errorf("sqlstore: failed to scan rows: %w", err)
		}
		v, err := record.Of(m[keyCol])
		if err != nil {
			return 0, fmt.Errorf("sqlstore: %s.%s: %w", table, keyCol, err)
		}
		return int64(n), setKey(entity, keyCol, v)
	}

	res, err := t.ExecContext(t.ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: insert into %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, setKey(entity, keyCol, record.Int(id))
}

func exec(t *tx, q string, args []any) (int64, error) {
	res, err := t.ExecContext(t.ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: %s: %w", strings.Fields(q)[0], err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func changedColumns(current, original *record.Row) *record.Row {
	out := record.NewRow(current.Len())
	for _, k := range current.Keys() {
		cur, _ := current.Get(k)
		if old, ok := original.Get(k); ok && old.Equal(cur) {
			continue
		}
		out.Set(k, cur)
	}
	return out
}

func without(row *record.Row, col string) *record.Row {
	out := record.NewRow(row.Len())
	for _, k := range row.Keys() {
		if k == col {
			continue
		}
		v, _ := row.Get(k)
		out.Set(k, v)
	}
	return out
}

// Query pushes p down as a WHERE clause. Predicates with no SQL form are evaluated
// in memory over the whole table.
func (s *Store) Query(ctx context.Context, table string, p *expr.Predicate) ([]*record.Row, error) {
	where, args, err := query.Where(s.dialect, p)
	filter := false
	switch {
	case errors.Is(err, query.ErrNotRenderable):
		s.logger.Debug("filtering in memory", zap.String("table", table), zap.Stringer("predicate", p), zap.Error(err))
		where, args, filter = "", nil, true
	case err != nil:
		return nil, fmt.Errorf("sqlstore: query %s: %w", table, err)
	}

	q := query.Select(s.dialect, table, where) + " ORDER BY " + s.dialect.Quote(gaudit.ColumnAuditID)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query %s: %w", table, err)
	}
	found, err := scanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to scan rows: %w", err)
	}

	out := make([]*record.Row, 0, len(found))
	for _, m := range found {
		row, err := record.RowOf(m)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: query %s: %w", table, err)
		}
		if filter {
			ok, err := p.Match(row)
			if err != nil {
				return nil, fmt.Errorf("sqlstore: query %s: %w", table, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, row)
	}
	return out, nil
}
