package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/record"
)

// ErrNotRenderable reports a predicate with no SQL equivalent. Callers filter in
// memory instead.
var ErrNotRenderable = errors.New("query: predicate cannot be rendered as SQL")

// Where renders a rewritten predicate as a SQL condition with bind arguments
// numbered from 1. A nil predicate renders as "".
func Where(d Dialect, p *expr.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	a := &args{d: d}
	var b strings.Builder
	if err := render(&b, a, p.Root); err != nil {
		return "", nil, err
	}
	return b.String(), a.vals, nil
}

func render(b *strings.Builder, a *args, n expr.Node) error {
	switch x := n.(type) {
	case expr.Column:
		b.WriteString(a.d.Quote(x.Name))
	case *expr.Column:
		return render(b, a, *x)
	case expr.Const:
		if x.Value.IsNull() {
			b.WriteString("NULL")
			return nil
		}
		b.WriteString(a.bind(x.Value.Any()))
	case *expr.Const:
		return render(b, a, *x)
	case expr.Convert:
		return renderConvert(b, a, x)
	case *expr.Convert:
		return renderConvert(b, a, *x)
	case expr.Binary:
		return renderBinary(b, a, x)
	case *expr.Binary:
		return renderBinary(b, a, *x)
	default:
		return fmt.Errorf("%w: %s", ErrNotRenderable, n)
	}
	return nil
}

// Columns are typed in the database, so conversions only matter for constants,
// which are converted before binding.
func renderConvert(b *strings.Builder, a *args, c expr.Convert) error {
	if k, ok := constOf(c.Operand); ok && c.To != expr.TypeAny {
		v, err := record.Convert(k, c.To.Kind())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNotRenderable, err)
		}
		return render(b, a, expr.Const{Value: v})
	}
	return render(b, a, c.Operand)
}

var comparisons = map[expr.Op]string{
	expr.Eq: "=", expr.Ne: "<>", expr.Gt: ">", expr.Ge: ">=", expr.Lt: "<", expr.Le: "<=",
}

var arithmetic = map[expr.Op]string{
	expr.Add: "+", expr.Sub: "-", expr.Mul: "*", expr.Div: "/", expr.Mod: "%",
}

func renderBinary(b *strings.Builder, a *args, n expr.Binary) error {
	if n.Op == expr.Eq || n.Op == expr.Ne {
		if operand, ok := nullComparison(n); ok {
			b.WriteByte('(')
			if err := render(b, a, operand); err != nil {
				return err
			}
			if n.Op == expr.Eq {
				b.WriteString(" IS NULL)")
			} else {
				b.WriteString(" IS NOT NULL)")
			}
			return nil
		}
		if sym, negate, ok := a.equality(n); ok {
			if !negate {
				return renderInfix(b, a, n.Left, sym, n.Right)
			}
			b.WriteString("(NOT ")
			if err := renderInfix(b, a, n.Left, sym, n.Right); err != nil {
				return err
			}
			b.WriteByte(')')
			return nil
		}
	}

	var sym string
	switch op := n.Op.Arithmetic(); {
	case comparisons[op] != "":
		sym = comparisons[op]
	case op == expr.AndAlso:
		sym = "AND"
	case op == expr.OrElse:
		sym = "OR"
	case op == expr.And || op == expr.Or:
		switch n.Type() {
		case expr.TypeBool:
			sym = map[expr.Op]string{expr.And: "AND", expr.Or: "OR"}[op]
		case expr.TypeInt:
			sym = map[expr.Op]string{expr.And: "&", expr.Or: "|"}[op]
		default:
			return fmt.Errorf("%w: %s on %s", ErrNotRenderable, op, n.Type())
		}
	case op == expr.Add && n.Type() == expr.TypeString:
		return renderConcat(b, a, n.Left, n.Right)
	case arithmetic[op] != "":
		sym = arithmetic[op]
	default:
		return fmt.Errorf("%w: operator %s", ErrNotRenderable, n.Op)
	}

	return renderInfix(b, a, n.Left, sym, n.Right)
}

func renderInfix(b *strings.Builder, a *args, l expr.Node, sym string, r expr.Node) error {
	b.WriteByte('(')
	if err := render(b, a, l); err != nil {
		return err
	}
	b.WriteString(" " + sym + " ")
	if err := render(b, a, r); err != nil {
		return err
	}
	b.WriteByte(')')
	return nil
}

// equality returns a null-safe operator for Eq and Ne, so that rows compare the
// way Predicate.Match does: null equals null and differs from any value. An
// equality against a constant keeps "=", which already excludes null rows.
// negate wraps the comparison in NOT for MySQL, which has no IS DISTINCT FROM.
func (a *args) equality(n expr.Binary) (sym string, negate, ok bool) {
	_, lc := constOf(n.Left)
	_, rc := constOf(n.Right)
	if lc && rc || n.Op == expr.Eq && (lc || rc) {
		return "", false, false
	}
	mysql := a.d.Name == MySQL.Name
	switch {
	case mysql:
		return "<=>", n.Op == expr.Ne, true
	case n.Op == expr.Eq:
		return "IS NOT DISTINCT FROM", false, true
	default:
		return "IS DISTINCT FROM", false, true
	}
}

func renderConcat(b *strings.Builder, a *args, l, r expr.Node) error {
	if a.d.Name == MySQL.Name {
		b.WriteString("CONCAT(")
		if err := render(b, a, l); err != nil {
			return err
		}
		b.WriteString(", ")
		if err := render(b, a, r); err != nil {
			return err
		}
		b.WriteByte(')')
		return nil
	}
	b.WriteByte('(')
	if err := render(b, a, l); err != nil {
		return err
	}
	b.WriteString(" || ")
	if err := render(b, a, r); err != nil {
		return err
	}
	b.WriteByte(')')
	return nil
}

// nullComparison returns the other operand when one side is a null constant.
func nullComparison(n expr.Binary) (expr.Node, bool) {
	if v, ok := constOf(n.Right); ok && v.IsNull() {
		return n.Left, true
	}
	if v, ok := constOf(n.Left); ok && v.IsNull() {
		return n.Right, true
	}
	return nil, false
}

func constOf(n expr.Node) (record.Value, bool) {
	switch x := n.(type) {
	case expr.Const:
		return x.Value, true
	case *expr.Const:
		return x.Value, true
	case expr.Convert:
		return constOf(x.Operand)
	case *expr.Convert:
		return constOf(x.Operand)
	}
	return record.Value{}, false
}
