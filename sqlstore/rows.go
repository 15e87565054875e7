package sqlstore

import (
	"database/sql"
)

// scanOne consumes exactly one row from *sql.Rows into a map.
func scanOne(rows *sql.Rows) (map[string]any, int, error) {
	ms, err := scan(rows, 1)
	if err != nil {
		return nil, 0, err
	}
	if len(ms) == 0 {
		return nil, 0, sql.ErrNoRows
	}
	return ms[0], 1, nil
}

// scanAll consumes every row from *sql.Rows into maps.
func scanAll(rows *sql.Rows) ([]map[string]any, error) {
	return scan(rows, -1)
}

// scan reads up to limit rows; a negative limit reads them all.
func scan(rows *sql.Rows, limit int) ([]map[string]any, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for (limit < 0 || len(out) < limit) && rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, rowToMap(cols, vals))
	}
	return out, rows.Err()
}

// rowToMap converts a single row (columns + values) to a map. Text the driver hands
// back as bytes becomes a string.
func rowToMap(cols []string, vals []any) map[string]any {
	m := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			m[c] = string(b)
			continue
		}
		m[c] = vals[i]
	}
	return m
}
