package expr

import (
	"reflect"

	"github.com/mickamy/gaudit/record"
)

// Names of the metadata members every audit view and audit table carry.
const (
	AuditIDField          = "AuditId"
	AuditCreateDateField  = "AuditCreateDate"
	AuditCreatorUserField = "AuditCreatorUserId"
	AuditTypeField        = "AuditType"
)

// View builds field references for audit views of entity type T.
type View[T any] struct {
	types map[string]Type
}

// For returns a builder for predicates over audit views of T.
func For[T any]() View[T] {
	fields := record.Fields(reflect.TypeOf((*T)(nil)).Elem())
	types := make(map[string]Type, len(fields))
	for _, f := range fields {
		if k, ok := record.KindOf(f.Type); ok {
			types[f.Name] = TypeOf(k)
		}
	}
	return View[T]{types: types}
}

// Current references CurrentData.<name>. Unknown names yield a field of TypeInvalid,
// which the rewriter rejects.
func (v View[T]) Current(name string) Field {
	return Field{Scope: ScopeCurrent, Name: name, Of: v.types[name]}
}

// Old references OldData.<name>.
func (v View[T]) Old(name string) Field {
	return Field{Scope: ScopeOld, Name: name, Of: v.types[name]}
}

func (View[T]) AuditID() Field {
	return Field{Scope: ScopeView, Name: AuditIDField, Of: TypeInt}
}

func (View[T]) AuditCreateDate() Field {
	return Field{Scope: ScopeView, Name: AuditCreateDateField, Of: TypeTime}
}

func (View[T]) AuditCreatorUserID() Field {
	return Field{Scope: ScopeView, Name: AuditCreatorUserField, Of: TypeString}
}

func (View[T]) AuditType() Field {
	return Field{Scope: ScopeView, Name: AuditTypeField, Of: TypeInt}
}

// Val wraps a Go value as a constant. It panics on types record.Of rejects.
func Val(v any) Const { return Const{Value: record.MustOf(v)} }

// Col references a row column directly, for use inside Call arguments.
func Col(name string) Column { return Column{Name: name} }

func Conv(n Node, to Type) Convert { return Convert{Operand: n, To: to} }

func Equal(l, r Node) Binary          { return Binary{Op: Eq, Left: l, Right: r} }
func NotEqual(l, r Node) Binary       { return Binary{Op: Ne, Left: l, Right: r} }
func GreaterThan(l, r Node) Binary    { return Binary{Op: Gt, Left: l, Right: r} }
func GreaterOrEqual(l, r Node) Binary { return Binary{Op: Ge, Left: l, Right: r} }
func LessThan(l, r Node) Binary       { return Binary{Op: Lt, Left: l, Right: r} }
func LessOrEqual(l, r Node) Binary    { return Binary{Op: Le, Left: l, Right: r} }

// All joins predicates with short-circuit AND.
func All(first Node, rest ...Node) Node {
	out := first
	for _, n := range rest {
		out = Binary{Op: AndAlso, Left: out, Right: n}
	}
	return out
}

// Any joins predicates with short-circuit OR.
func Any(first Node, rest ...Node) Node {
	out := first
	for _, n := range rest {
		out = Binary{Op: OrElse, Left: out, Right: n}
	}
	return out
}

func Negation(n Node) Unary { return Unary{Op: Not, Operand: n} }
