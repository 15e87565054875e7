package gaudit

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/mickamy/gaudit/expr"
)

// Audit returns the audit trail of entity type T whose rows match pred, a predicate
// built with expr.For[T](). A nil pred returns every row. The predicate is rewritten
// against T's audit table and handed to the store.
func Audit[T any](ctx context.Context, c *Context, pred expr.Node) ([]AuditView[T], error) {
	entity := EntityName(reflect.TypeOf((*T)(nil)).Elem())
	def, ok := c.Definition(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAuditable, entity)
	}

	var p *expr.Predicate
	if pred != nil {
		var err error
		if p, err = expr.Rewrite(pred, def); err != nil {
			return nil, fmt.Errorf("gaudit: audit query on %s: %w", def.Table(), err)
		}
	}

	rows, err := c.store.Query(ctx, def.QualifiedName(), p)
	if err != nil {
		return nil, fmt.Errorf("gaudit: audit query on %s: %w", def.Table(), err)
	}
	c.logger.Debug("audit query",
		zap.String("table", def.QualifiedName()),
		zap.Stringer("predicate", p),
		zap.Int("rows", len(rows)),
	)
	return Materialize[T](def, rows)
}
