package record

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// Row is an insertion-ordered column map.
type Row struct {
	keys []string
	vals map[string]Value
}

// NewRow returns an empty row with room for n columns.
func NewRow(n int) *Row {
	return &Row{keys: make([]string, 0, n), vals: make(map[string]Value, n)}
}

// RowOf builds a row from a plain map. Keys are sorted for a stable order.
func RowOf(m map[string]any) (*Row, error) {
	r := NewRow(len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v, err := Of(m[k])
		if err != nil {
			return nil, fmt.Errorf("record: column %q: %w", k, err)
		}
		r.Set(k, v)
	}
	return r, nil
}

// Set assigns a column, appending it when new.
func (r *Row) Set(k string, v Value) {
	if r.vals == nil {
		r.vals = make(map[string]Value)
	}
	if _, ok := r.vals[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.vals[k] = v
}

func (r *Row) Get(k string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.vals[k]
	return v, ok
}

// Has reports whether the column is present.
func (r *Row) Has(k string) bool {
	_, ok := r.Get(k)
	return ok
}

func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the column names in insertion order.
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Row) Clone() *Row {
	out := NewRow(r.Len())
	for _, k := range r.Keys() {
		out.Set(k, r.vals[k])
	}
	return out
}

// Merge copies every column of o into r, overwriting existing ones.
func (r *Row) Merge(o *Row) {
	for _, k := range o.Keys() {
		r.Set(k, o.vals[k])
	}
}

// Rename returns a copy with every key passed through fn.
func (r *Row) Rename(fn func(string) string) *Row {
	out := NewRow(r.Len())
	for _, k := range r.Keys() {
		out.Set(fn(k), r.vals[k])
	}
	return out
}

// Map returns the row as boxed Go values.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, r.Len())
	for _, k := range r.Keys() {
		out[k] = r.vals[k].Any()
	}
	return out
}

// Equal reports whether both rows hold the same columns and values, ignoring order.
func (r *Row) Equal(o *Row) bool {
	if r.Len() != o.Len() {
		return false
	}
	for _, k := range r.Keys() {
		ov, ok := o.Get(k)
		if !ok || !r.vals[k].Equal(ov) {
			return false
		}
	}
	return true
}

// Snapshot captures the exported fields of a struct (or pointer to struct), including
// fields promoted from embedded structs, in declaration order.
func Snapshot(entity any) (*Row, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("record: nil %T", entity)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrUnsupportedType, entity)
	}
	fields := Fields(rv.Type())
	row := NewRow(len(fields))
	for _, f := range fields {
		fv, err := rv.FieldByIndexErr(f.Index)
		if err != nil {
			// promoted through a nil embedded pointer
			row.Set(f.Name, Null())
			continue
		}
		v, err := Of(fv.Interface())
		if err != nil {
			return nil, fmt.Errorf("record: field %s: %w", f.Name, err)
		}
		row.Set(f.Name, v)
	}
	return row, nil
}

// Fields lists the exported, non-embedded fields visible on a struct type.
func Fields(t reflect.Type) []reflect.StructField {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var out []reflect.StructField
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		out = append(out, f)
	}
	return out
}

