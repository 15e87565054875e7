package record

import (
	"database/sql"
	"fmt"
	"math"
	"reflect"
)

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// Assign stores v into dst, which must be settable. Null zeroes dst. Values are
// converted the way drivers tend to return them: strings parse as times, integers
// become booleans and whole floats become integers.
func Assign(dst reflect.Value, v Value) error {
	if !dst.CanSet() {
		return fmt.Errorf("record: cannot set %v", dst.Type())
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(v.Any())
	}
	if v.IsNull() {
		dst.SetZero()
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	want, ok := KindOf(dst.Type())
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedType, dst.Type())
	}
	if want == KindInt && v.Kind() == KindFloat && v.Float() != math.Trunc(v.Float()) {
		return fmt.Errorf("record: %v is not a whole number", v.Float())
	}
	cv, err := Convert(v, want)
	if err != nil {
		return err
	}
	switch want {
	case KindString:
		if dst.Kind() == reflect.Slice {
			dst.SetBytes([]byte(cv.Str()))
		} else {
			dst.SetString(cv.Str())
		}
	case KindBool:
		dst.SetBool(cv.Bool())
	case KindTime:
		dst.Set(reflect.ValueOf(cv.Time()))
	case KindFloat:
		dst.SetFloat(cv.Float())
	case KindInt:
		switch dst.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if cv.Int64() < 0 {
				return fmt.Errorf("record: %d overflows %v", cv.Int64(), dst.Type())
			}
			dst.SetUint(uint64(cv.Int64()))
		default:
			dst.SetInt(cv.Int64())
		}
	}
	return nil
}
