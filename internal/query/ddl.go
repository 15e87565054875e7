package query

import (
	"fmt"
	"strings"

	"github.com/mickamy/gaudit/internal/ident"
	"github.com/mickamy/gaudit/record"
)

// ColumnDef is one column of a created table.
type ColumnDef struct {
	Name string
	Kind record.Kind
	// AutoKey makes the column a store-generated primary key.
	AutoKey bool
}

// CreateSchema renders the statement creating the schema of a qualified table name,
// or "" when the name has no schema part.
func CreateSchema(d Dialect, qualified string) string {
	parts := ident.SplitQualified(qualified)
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.Quote(parts[len(parts)-2]))
}

// CreateTable renders a CREATE TABLE IF NOT EXISTS statement.
func CreateTable(d Dialect, table string, cols []ColumnDef) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("query: table %s has no columns", table)
	}
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.AutoKey {
			defs = append(defs, d.Quote(c.Name)+" "+d.autoKey)
			continue
		}
		typ, ok := d.types[c.Kind]
		if !ok {
			return "", fmt.Errorf("query: column %s: no %s type for %s", c.Name, d.Name, c.Kind)
		}
		defs = append(defs, d.Quote(c.Name)+" "+typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.QuoteTable(table), strings.Join(defs, ",\n\t")), nil
}
