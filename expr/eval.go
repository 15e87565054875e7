package expr

import (
	"errors"
	"fmt"
	"math"

	"github.com/mickamy/gaudit/record"
)

// ErrDivideByZero is returned when an integer division or modulo has a zero divisor.
var ErrDivideByZero = errors.New("expr: division by zero")

// Match evaluates the predicate against a row. A null result does not match and a nil
// predicate matches every row.
func (p *Predicate) Match(row *record.Row) (bool, error) {
	if p == nil {
		return true, nil
	}
	v, err := Eval(p.Root, row)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	if v.Kind() != record.KindBool {
		return false, fmt.Errorf("expr: predicate evaluated to %s", v.Kind())
	}
	return v.Bool(), nil
}

// Eval evaluates a row-level expression. Missing columns read as null.
func Eval(n Node, row *record.Row) (record.Value, error) {
	if isNil(n) {
		return record.Value{}, fmt.Errorf("%w: nil expression", ErrInvalidArgument)
	}
	switch x := n.(type) {
	case Column:
		v, _ := row.Get(x.Name)
		return v, nil
	case *Column:
		return Eval(*x, row)
	case Const:
		return x.Value, nil
	case *Const:
		return x.Value, nil
	case Convert:
		return evalConvert(x, row)
	case *Convert:
		return evalConvert(*x, row)
	case Binary:
		return evalBinary(x, row)
	case *Binary:
		return evalBinary(*x, row)
	case Call:
		return evalCall(x, row)
	case *Call:
		return evalCall(*x, row)
	case Field, *Field:
		return record.Value{}, &UnsupportedError{What: n.String(), Reason: "view field was not rewritten"}
	}
	return record.Value{}, &UnsupportedError{What: fmt.Sprintf("%T %s", n, n)}
}

func evalConvert(c Convert, row *record.Row) (record.Value, error) {
	v, err := Eval(c.Operand, row)
	if err != nil {
		return record.Value{}, err
	}
	if c.To == TypeAny {
		return v, nil
	}
	return record.Convert(v, c.To.Kind())
}

func evalCall(c Call, row *record.Row) (record.Value, error) {
	if c.Fn == nil {
		return record.Value{}, fmt.Errorf("%w: call %s has no function", ErrInvalidArgument, c.Name)
	}
	args := make([]record.Value, len(c.Args))
	for i, a := range c.Args {
		v, err := Eval(a, row)
		if err != nil {
			return record.Value{}, err
		}
		args[i] = v
	}
	return c.Fn(args)
}

func evalBinary(b Binary, row *record.Row) (record.Value, error) {
	left, err := Eval(b.Left, row)
	if err != nil {
		return record.Value{}, err
	}
	switch b.Op {
	case AndAlso:
		if !truth(left) {
			return record.Bool(false), nil
		}
		right, err := Eval(b.Right, row)
		if err != nil {
			return record.Value{}, err
		}
		return record.Bool(truth(right)), nil
	case OrElse:
		if truth(left) {
			return record.Bool(true), nil
		}
		right, err := Eval(b.Right, row)
		if err != nil {
			return record.Value{}, err
		}
		return record.Bool(truth(right)), nil
	}

	right, err := Eval(b.Right, row)
	if err != nil {
		return record.Value{}, err
	}
	switch b.Op {
	case Eq:
		return record.Bool(left.Equal(right)), nil
	case Ne:
		return record.Bool(!left.Equal(right)), nil
	case Gt, Ge, Lt, Le:
		if left.IsNull() || right.IsNull() {
			return record.Bool(false), nil
		}
		c, err := record.Compare(left, right)
		if err != nil {
			return record.Value{}, err
		}
		return record.Bool(ordered(b.Op, c)), nil
	case And, Or:
		return logical(b.Op, left, right)
	}
	return arithmetic(b.Op.Arithmetic(), left, right)
}

func truth(v record.Value) bool {
	return v.Kind() == record.KindBool && v.Bool()
}

func ordered(op Op, c int) bool {
	switch op {
	case Gt:
		return c > 0
	case Ge:
		return c >= 0
	case Lt:
		return c < 0
	default:
		return c <= 0
	}
}

func logical(op Op, l, r record.Value) (record.Value, error) {
	switch {
	case l.Kind() == record.KindBool && r.Kind() == record.KindBool:
		if op == And {
			return record.Bool(l.Bool() && r.Bool()), nil
		}
		return record.Bool(l.Bool() || r.Bool()), nil
	case l.Kind() == record.KindInt && r.Kind() == record.KindInt:
		if op == And {
			return record.Int(l.Int64() & r.Int64()), nil
		}
		return record.Int(l.Int64() | r.Int64()), nil
	case l.IsNull() || r.IsNull():
		return record.Null(), nil
	}
	return record.Value{}, fmt.Errorf("expr: %s not defined on %s and %s", op, l.Kind(), r.Kind())
}

func arithmetic(op Op, l, r record.Value) (record.Value, error) {
	if l.IsNull() || r.IsNull() {
		return record.Null(), nil
	}
	if op == Add && l.Kind() == record.KindString && r.Kind() == record.KindString {
		return record.String(l.Str() + r.Str()), nil
	}
	if l.Kind() == record.KindInt && r.Kind() == record.KindInt {
		a, b := l.Int64(), r.Int64()
		switch op {
		case Add:
			return record.Int(a + b), nil
		case Sub:
			return record.Int(a - b), nil
		case Mul:
			return record.Int(a * b), nil
		case Div, Mod:
			if b == 0 {
				return record.Value{}, ErrDivideByZero
			}
			if op == Div {
				return record.Int(a / b), nil
			}
			return record.Int(a % b), nil
		}
	}
	a, aok := number(l)
	b, bok := number(r)
	if !aok || !bok {
		return record.Value{}, fmt.Errorf("expr: %s not defined on %s and %s", op, l.Kind(), r.Kind())
	}
	switch op {
	case Add:
		return record.Float(a + b), nil
	case Sub:
		return record.Float(a - b), nil
	case Mul:
		return record.Float(a * b), nil
	case Div:
		return record.Float(a / b), nil
	case Mod:
		return record.Float(math.Mod(a, b)), nil
	}
	return record.Value{}, &UnsupportedError{What: "binary operator " + op.String()}
}

func number(v record.Value) (float64, bool) {
	switch v.Kind() {
	case record.KindInt:
		return float64(v.Int64()), true
	case record.KindFloat:
		return v.Float(), true
	}
	return 0, false
}
