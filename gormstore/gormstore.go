// Package gormstore is a gaudit.Store on gorm. Entities are written through gorm's
// model API; audit rows go to their tables as column maps.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/internal/buffer"
	"github.com/mickamy/gaudit/internal/query"
	"github.com/mickamy/gaudit/internal/tracker"
	"github.com/mickamy/gaudit/record"
)

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store tracks entities in memory and persists them, together with staged audit
// rows, in one gorm transaction per Persist.
type Store struct {
	*tracker.Tracker

	db      *gorm.DB
	dialect query.Dialect
	staged  *buffer.Buffer[gaudit.AuditRow]
	logger  *zap.Logger
}

var _ gaudit.Store = (*Store)(nil)

// New wraps db. Its dialector must be mysql or postgres.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	d, ok := query.DialectFor(db.Dialector.Name())
	if !ok {
		return nil, fmt.Errorf("gormstore: unsupported dialector %q", db.Dialector.Name())
	}
	s := &Store{
		Tracker: tracker.New(),
		db:      db,
		dialect: d.Unnumbered(),
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

// Persist writes pending entity changes, then staged rows. Staged rows are dropped
// when the transaction fails.
func (s *Store) Persist(ctx context.Context, acceptAll bool) (int, error) {
	changes, err := s.Changes()
	if err != nil {
		return 0, fmt.Errorf("gormstore: %w", err)
	}
	rows := s.staged.Drain()
	if len(changes) == 0 && len(rows) == 0 {
		if acceptAll {
			s.AcceptAllChanges()
		}
		return 0, nil
	}

	var n int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			affected, err := s.apply(tx, c)
			if err != nil {
				return err
			}
			n += affected
		}
		for _, r := range rows {
			res := s.table(tx, r.Table).Create(r.Data.Map())
			if res.Error != nil {
				return fmt.Errorf("gormstore: insert into %s: %w", r.Table, res.Error)
			}
			n += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.Flushed(changes, acceptAll)
	s.logger.Debug("persisted", zap.Int("changes", len(changes)), zap.Int("rows", len(rows)), zap.Int64("affected", n))
	return int(n), nil
}

func (s *Store) apply(tx *gorm.DB, c tracker.Change) (int64, error) {
	var res *gorm.DB
	switch c.State {
	case gaudit.Added:
		res = tx.Create(c.Value)
	case gaudit.Modified:
		fields := changedFields(c.Mutation)
		if len(fields) == 0 {
			fields = []string{"*"}
		}
		res = tx.Model(c.Value).Select(fields).Updates(c.Value)
	case gaudit.Deleted:
		res = tx.Delete(c.Value)
	default:
		return 0, nil
	}
	if res.Error != nil {
		return 0, fmt.Errorf("gormstore: %s %s: %w", c.State, c.Entity, res.Error)
	}
	return res.RowsAffected, nil
}

func changedFields(m gaudit.Mutation) []string {
	var out []string
	for _, k := range m.Current.Keys() {
		cur, _ := m.Current.Get(k)
		if old, ok := m.Original.Get(k); ok && old.Equal(cur) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// table addresses a possibly schema-qualified table with the dialect's quoting.
func (s *Store) table(tx *gorm.DB, name string) *gorm.DB {
	return tx.Table("?", gorm.Expr(s.dialect.QuoteTable(name)))
}

// Query pushes p down as a WHERE clause. Predicates with no SQL form are evaluated
// in memory over the whole table.
func (s *Store) Query(ctx context.Context, table string, p *expr.Predicate) ([]*record.Row, error) {
	where, args, err := query.Where(s.dialect, p)
	filter := false
	switch {
	case errors.Is(err, query.ErrNotRenderable):
		s.logger.Debug("filtering in memory", zap.String("table", table), zap.Stringer("predicate", p), zap.Error(err))
		where, filter = "", true
	case err != nil:
		return nil, fmt.Errorf("gormstore: query %s: %w", table, err)
	}

	tx := s.table(s.db.WithContext(ctx), table)
	if where != "" {
		tx = tx.Where(where, args...)
	}
	var found []map[string]any
	if err := tx.Order(clause.OrderByColumn{Column: clause.Column{Name: gaudit.ColumnAuditID}}).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("gormstore: query %s: %w", table, err)
	}

	out := make([]*record.Row, 0, len(found))
	for _, m := range found {
		row, err := record.RowOf(m)
		if err != nil {
			return nil, fmt.Errorf("gormstore: query %s: %w", table, err)
		}
		if filter {
			ok, err := p.Match(row)
			if err != nil {
				return nil, fmt.Errorf("gormstore: query %s: %w", table, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// Migrate auto-migrates models, then creates the audit tables of defs when missing.
func (s *Store) Migrate(ctx context.Context, defs []*gaudit.TableDefinition, models ...any) error {
	db := s.db.WithContext(ctx)
	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return fmt.Errorf("gormstore: auto migrate: %w", err)
		}
	}
	for _, def := range defs {
		stmts, err := query.CreateAuditTable(s.dialect, def)
		if err != nil {
			return fmt.Errorf("gormstore: %w", err)
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("gormstore: migrate %s: %w", def.QualifiedName(), err)
			}
		}
		s.logger.Info("audit table ready", zap.String("table", def.QualifiedName()))
	}
	return nil
}
