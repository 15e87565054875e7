package expr

import (
	"errors"
	"fmt"

	"github.com/mickamy/gaudit/record"
)

var (
	// ErrUnsupported is matched by every UnsupportedError.
	ErrUnsupported = errors.New("expr: unsupported expression")
	// ErrInvalidArgument reports a structurally required node that is missing.
	ErrInvalidArgument = errors.New("expr: invalid argument")
)

// UnsupportedError names the node or operator the rewriter refused to translate.
type UnsupportedError struct {
	What   string
	Reason string
}

func (e *UnsupportedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("expr: unsupported expression: %s", e.What)
	}
	return fmt.Sprintf("expr: unsupported expression: %s: %s", e.What, e.Reason)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// Schema resolves audit view members to audit row columns.
type Schema interface {
	// ColumnKind reports the storage kind of a column of the audit table.
	ColumnKind(column string) (record.Kind, bool)
	// OldColumn returns the column holding the previous value of an entity field.
	OldColumn(field string) (string, bool)
	// IsMetadata reports whether the column is one of the fixed audit metadata columns.
	IsMetadata(column string) bool
}

// Predicate is a boolean expression over an audit row.
type Predicate struct {
	Root Node
}

func (p *Predicate) String() string {
	if p == nil || p.Root == nil {
		return "<all>"
	}
	return p.Root.String()
}

// Rewrite translates a predicate over an audit view into an equivalent predicate over
// untyped audit rows of the table described by s.
func Rewrite(n Node, s Schema) (*Predicate, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidArgument)
	}
	root, err := rewrite(n, s)
	if err != nil {
		return nil, err
	}
	if t := root.Type(); t != TypeBool {
		return nil, fmt.Errorf("%w: predicate has type %s, want bool", ErrInvalidArgument, t)
	}
	return &Predicate{Root: root}, nil
}

func rewrite(n Node, s Schema) (Node, error) {
	if isNil(n) {
		return nil, fmt.Errorf("%w: nil expression", ErrInvalidArgument)
	}
	switch x := n.(type) {
	case Field:
		return rewriteField(x, s)
	case *Field:
		return rewriteField(*x, s)
	case Const, *Const:
		return n, nil
	case Convert:
		return rewriteConvert(x, s)
	case *Convert:
		return rewriteConvert(*x, s)
	case Binary:
		return rewriteBinary(x, s)
	case *Binary:
		return rewriteBinary(*x, s)
	case Call, *Call:
		return n, nil
	}
	return nil, &UnsupportedError{What: fmt.Sprintf("%T %s", n, n)}
}

func rewriteField(f Field, s Schema) (Node, error) {
	name, err := resolveColumn(f, s)
	if err != nil {
		return nil, err
	}
	kind, _ := s.ColumnKind(name)
	col := Column{Name: name}
	if kind == record.KindBool {
		// boxed cells cannot be tested for truth directly
		return Binary{Op: Eq, Left: col, Right: Convert{Operand: Const{Value: record.Bool(true)}, To: TypeAny}}, nil
	}
	return col, nil
}

func resolveColumn(f Field, s Schema) (string, error) {
	switch f.Scope {
	case ScopeView:
		if s.IsMetadata(f.Name) {
			return f.Name, nil
		}
	case ScopeCurrent:
		if _, ok := s.ColumnKind(f.Name); ok && !s.IsMetadata(f.Name) {
			return f.Name, nil
		}
	case ScopeOld:
		if col, ok := s.OldColumn(f.Name); ok {
			return col, nil
		}
	}
	return "", &UnsupportedError{What: f.String(), Reason: "no matching audit column"}
}

func rewriteConvert(c Convert, s Schema) (Node, error) {
	operand, err := rewrite(c.Operand, s)
	if err != nil {
		return nil, err
	}
	return Convert{Operand: operand, To: c.To}, nil
}

func rewriteBinary(b Binary, s Schema) (Node, error) {
	if !b.Op.supported() {
		return nil, &UnsupportedError{What: "binary operator " + b.Op.String()}
	}
	left, err := rewrite(b.Left, s)
	if err != nil {
		return nil, err
	}
	right, err := rewrite(b.Right, s)
	if err != nil {
		return nil, err
	}
	lt, rt := declared(left, s), declared(right, s)
	to := promote(lt, rt)
	return Binary{Op: b.Op, Left: coerce(left, to), Right: coerce(right, to)}, nil
}

// declared is the static type of a rewritten node, with columns typed by the
// table definition instead of boxed.
func declared(n Node, s Schema) Type {
	if c, ok := n.(Column); ok {
		if k, ok := s.ColumnKind(c.Name); ok {
			return TypeOf(k)
		}
	}
	return n.Type()
}

// promote picks the common type of two operands. Mixed int and float widen to
// float, so a column is never narrowed.
func promote(l, r Type) Type {
	switch {
	case l == r:
		return l
	case isNumber(l) && isNumber(r):
		return TypeFloat
	case l == TypeAny:
		return r
	case r == TypeAny:
		return l
	}
	return r
}

func isNumber(t Type) bool { return t == TypeInt || t == TypeFloat }

func coerce(n Node, to Type) Node {
	if n.Type() == to {
		return n
	}
	return Convert{Operand: n, To: to}
}

func isNil(n Node) bool {
	switch x := n.(type) {
	case nil:
		return true
	case *Field:
		return x == nil
	case *Const:
		return x == nil
	case *Convert:
		return x == nil
	case *Binary:
		return x == nil
	case *Call:
		return x == nil
	case *Unary:
		return x == nil
	case *Column:
		return x == nil
	}
	return false
}
