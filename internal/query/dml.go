package query

import (
	"fmt"
	"strings"

	"github.com/mickamy/gaudit/record"
)

// Insert renders an INSERT of row into table.
func Insert(d Dialect, table string, row *record.Row) (string, []any) {
	a := &args{d: d}
	cols := make([]string, 0, row.Len())
	vals := make([]string, 0, row.Len())
	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		cols = append(cols, d.Quote(k))
		vals = append(vals, a.bind(v.Any()))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.QuoteTable(table), strings.Join(cols, ", "), strings.Join(vals, ", "))
	return q, a.vals
}

// Update renders an UPDATE setting every column of set on the row whose key column
// equals key.
func Update(d Dialect, table string, set *record.Row, keyColumn string, key any) (string, []any) {
	a := &args{d: d}
	assigns := make([]string, 0, set.Len())
	for _, k := range set.Keys() {
		if k == keyColumn {
			continue
		}
		v, _ := set.Get(k)
		assigns = append(assigns, d.Quote(k)+" = "+a.bind(v.Any()))
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", d.QuoteTable(table), strings.Join(assigns, ", "), d.Quote(keyColumn), a.bind(key))
	return q, a.vals
}

// Delete renders a DELETE of the row whose key column equals key.
func Delete(d Dialect, table string, keyColumn string, key any) (string, []any) {
	a := &args{d: d}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.QuoteTable(table), d.Quote(keyColumn), a.bind(key))
	return q, a.vals
}

// Select renders a SELECT * with an optional condition from Where.
func Select(d Dialect, table string, where string) string {
	q := "SELECT * FROM " + d.QuoteTable(table)
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

// AppendReturningAll appends "RETURNING *" to the provided statement if non-empty.
// It preserves trailing semicolons by re-attaching them after the RETURNING clause.
func AppendReturningAll(q string) (string, bool) {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return q, false
	}

	hasSemicolon := false
	for strings.HasSuffix(trimmed, ";") {
		hasSemicolon = true
		trimmed = strings.TrimSpace(trimmed[:len(trimmed)-1])
	}
	if trimmed == "" {
		return q, false
	}

	var b strings.Builder
	b.WriteString(trimmed)
	b.WriteString(" RETURNING *")
	if hasSemicolon {
		b.WriteString(";")
	}
	return b.String(), true
}
