package sqlstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/internal/query"
)

// Migrate creates the audit tables of defs, and their schemas, when missing.
func (s *Store) Migrate(ctx context.Context, defs ...*gaudit.TableDefinition) error {
	for _, def := range defs {
		if def == nil {
			continue
		}
		stmts, err := query.CreateAuditTable(s.dialect, def)
		if err != nil {
			return fmt.Errorf("sqlstore: %w", err)
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlstore: migrate %s: %w", def.QualifiedName(), err)
			}
		}
		s.logger.Info("audit table ready", zap.String("table", def.QualifiedName()))
	}
	return nil
}
