package record

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind identifies which member of the Value union is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ErrUnsupportedType is returned when a Go value has no Value representation.
var ErrUnsupportedType = errors.New("record: unsupported type")

// Value is a single untyped storage cell.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func Null() Value              { return Value{} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Int(i int64) Value        { return Value{kind: KindInt, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value   { return Value{kind: KindTime, t: t} }
func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Str() string    { return v.s }
func (v Value) Int64() int64   { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Bool() bool     { return v.b }
func (v Value) Time() time.Time {
	return v.t
}

// Any returns the boxed Go value, nil for null.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.s)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return "?"
	}
}

var (
	timeType   = reflect.TypeOf(time.Time{})
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// Of converts a Go value into a Value.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case int32:
		return Int(int64(x)), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case time.Time:
		return Time(x), nil
	case driver.Valuer:
		rv := reflect.ValueOf(x)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Null(), nil
		}
		dv, err := x.Value()
		if err != nil {
			return Value{}, err
		}
		return Of(dv)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return Of(rv.Elem().Interface())
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %T %d overflows int64", ErrUnsupportedType, v, u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

// MustOf is like Of but panics on unsupported types.
func MustOf(v any) Value {
	out, err := Of(v)
	if err != nil {
		panic(err)
	}
	return out
}

// KindOf reports the Kind a Go type is stored as.
func KindOf(t reflect.Type) (Kind, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return KindTime, true
	}
	switch t.Kind() {
	case reflect.String:
		return KindString, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindString, true
		}
	case reflect.Bool:
		return KindBool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt, true
	case reflect.Float32, reflect.Float64:
		return KindFloat, true
	}
	return KindNull, false
}

// Equal reports whether two values are equal. Int and Float compare numerically.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return v.kind == o.kind
	}
	c, err := Compare(v, o)
	return err == nil && c == 0
}

// ErrIncomparable is returned by Compare for values of unrelated kinds.
var ErrIncomparable = errors.New("record: incomparable values")

// Compare orders two non-null values of compatible kinds.
func Compare(a, b Value) (int, error) {
	if isNumeric(a.kind) && isNumeric(b.kind) {
		if a.kind == KindInt && b.kind == KindInt {
			return cmp(a.i, b.i), nil
		}
		return cmp(a.asFloat(), b.asFloat()), nil
	}
	if a.kind != b.kind || a.kind == KindNull {
		return 0, fmt.Errorf("%w: %s and %s", ErrIncomparable, a.kind, b.kind)
	}
	switch a.kind {
	case KindString:
		return cmp(a.s, b.s), nil
	case KindBool:
		switch {
		case a.b == b.b:
			return 0, nil
		case !a.b:
			return -1, nil
		default:
			return 1, nil
		}
	case KindTime:
		return a.t.Compare(b.t), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrIncomparable, a.kind)
}

// Convert changes v to kind k. Null converts to any kind unchanged.
func Convert(v Value, k Kind) (Value, error) {
	if v.kind == k || v.kind == KindNull || k == KindNull {
		return v, nil
	}
	switch {
	case v.kind == KindInt && k == KindFloat:
		return Float(float64(v.i)), nil
	case v.kind == KindFloat && k == KindInt:
		return Int(int64(v.f)), nil
	case v.kind == KindString && k == KindTime:
		t, err := ParseTime(v.s)
		if err != nil {
			return Value{}, err
		}
		return Time(t), nil
	case v.kind == KindInt && k == KindBool:
		return Bool(v.i != 0), nil
	case v.kind == KindString && k == KindInt:
		i, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("record: convert %q to int: %w", v.s, err)
		}
		return Int(i), nil
	case v.kind == KindString && k == KindFloat:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("record: convert %q to float: %w", v.s, err)
		}
		return Float(f), nil
	case v.kind == KindString && k == KindBool:
		b, err := strconv.ParseBool(v.s)
		if err != nil {
			return Value{}, fmt.Errorf("record: convert %q to bool: %w", v.s, err)
		}
		return Bool(b), nil
	}
	return Value{}, fmt.Errorf("record: cannot convert %s to %s", v.kind, k)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses the textual timestamp forms drivers commonly return.
func ParseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("record: parse time %q: %w", s, err)
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

func (v Value) asFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

func cmp[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
