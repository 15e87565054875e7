// Package expr is a small predicate language over audit views and the rewriter that
// turns such predicates into predicates over untyped audit rows.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mickamy/gaudit/record"
)

// Type is the static type of a node. TypeAny marks a boxed column value whose
// kind is only known at evaluation time.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeAny
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
)

var typeNames = [...]string{"invalid", "any", "string", "int", "float", "bool", "time"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// TypeOf maps a storage kind to a static type. Null has no static type and is boxed.
func TypeOf(k record.Kind) Type {
	switch k {
	case record.KindString:
		return TypeString
	case record.KindInt:
		return TypeInt
	case record.KindFloat:
		return TypeFloat
	case record.KindBool:
		return TypeBool
	case record.KindTime:
		return TypeTime
	default:
		return TypeAny
	}
}

// Kind is the storage kind a conversion to t produces; TypeAny maps to KindNull.
func (t Type) Kind() record.Kind {
	switch t {
	case TypeString:
		return record.KindString
	case TypeInt:
		return record.KindInt
	case TypeFloat:
		return record.KindFloat
	case TypeBool:
		return record.KindBool
	case TypeTime:
		return record.KindTime
	default:
		return record.KindNull
	}
}

// Node is an expression tree node.
type Node interface {
	Type() Type
	String() string
	node()
}

// Scope selects which part of an audit view a Field reads.
type Scope uint8

const (
	ScopeView Scope = iota
	ScopeCurrent
	ScopeOld
)

func (s Scope) String() string {
	switch s {
	case ScopeCurrent:
		return "CurrentData"
	case ScopeOld:
		return "OldData"
	default:
		return "view"
	}
}

// Field reads a member of an audit view: a metadata field, or CurrentData.Name / OldData.Name.
type Field struct {
	Scope Scope
	Name  string
	Of    Type
}

// Column reads a column of an untyped audit row. Its value is boxed.
type Column struct {
	Name string
}

type Const struct {
	Value record.Value
}

// Convert changes the static type of its operand.
type Convert struct {
	Operand Node
	To      Type
}

type Binary struct {
	Op          Op
	Left, Right Node
}

// Unary nodes can be built but are not translatable to audit rows.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

// Call invokes a helper function. Calls are passed through rewriting untouched, so
// their arguments must already be expressed over columns.
type Call struct {
	Name    string
	Args    []Node
	Returns Type
	Fn      func(args []record.Value) (record.Value, error)
}

func (Field) node()   {}
func (Column) node()  {}
func (Const) node()   {}
func (Convert) node() {}
func (Binary) node()  {}
func (Unary) node()   {}
func (Call) node()    {}

func (f Field) Type() Type   { return f.Of }
func (Column) Type() Type    { return TypeAny }
func (c Const) Type() Type   { return TypeOf(c.Value.Kind()) }
func (c Convert) Type() Type { return c.To }
func (u Unary) Type() Type   { return u.Operand.Type() }
func (c Call) Type() Type    { return c.Returns }

func (b Binary) Type() Type {
	switch {
	case b.Op.isComparison(), b.Op == AndAlso, b.Op == OrElse:
		return TypeBool
	default:
		return b.Left.Type()
	}
}

func (f Field) String() string {
	if f.Scope == ScopeView {
		return "view." + f.Name
	}
	return "view." + f.Scope.String() + "." + f.Name
}

func (c Column) String() string  { return "row[" + strconv.Quote(c.Name) + "]" }
func (c Const) String() string   { return c.Value.String() }
func (c Convert) String() string { return "(" + c.To.String() + ")" + c.Operand.String() }
func (b Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}
func (u Unary) String() string { return u.Op.String() + u.Operand.String() }

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

// Op is a binary operator.
type Op uint8

const (
	Eq Op = iota
	Ne
	Gt
	Ge
	Lt
	Le
	And
	AndAlso
	Or
	OrElse
	Add
	AddAssign
	Sub
	SubAssign
	Mul
	MulAssign
	Div
	DivAssign
	Mod
	ModAssign
	Shl
	Shr
	Xor
	Power
	Coalesce
)

var opSymbols = [...]string{
	Eq: "==", Ne: "!=", Gt: ">", Ge: ">=", Lt: "<", Le: "<=",
	And: "&", AndAlso: "&&", Or: "|", OrElse: "||",
	Add: "+", AddAssign: "+=", Sub: "-", SubAssign: "-=",
	Mul: "*", MulAssign: "*=", Div: "/", DivAssign: "/=",
	Mod: "%", ModAssign: "%=",
	Shl: "<<", Shr: ">>", Xor: "^", Power: "**", Coalesce: "??",
}

func (o Op) String() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

func (o Op) isComparison() bool { return o <= Le }

// supported is the closed set of operators the rewriter translates.
func (o Op) supported() bool { return o <= ModAssign }

// Arithmetic strips the assignment form: x += y evaluates as x + y on a row.
func (o Op) Arithmetic() Op {
	switch o {
	case AddAssign:
		return Add
	case SubAssign:
		return Sub
	case MulAssign:
		return Mul
	case DivAssign:
		return Div
	case ModAssign:
		return Mod
	}
	return o
}

type UnaryOp uint8

const (
	Not UnaryOp = iota
	Negate
)

func (o UnaryOp) String() string {
	if o == Negate {
		return "-"
	}
	return "!"
}
