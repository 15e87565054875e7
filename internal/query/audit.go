package query

import (
	"github.com/mickamy/gaudit"
)

// CreateAuditTable renders the statements creating the audit table of def and its
// schema. AuditId becomes a generated primary key; every other column takes the
// type of its source field.
func CreateAuditTable(d Dialect, def *gaudit.TableDefinition) ([]string, error) {
	table := def.QualifiedName()
	cols := []ColumnDef{{Name: gaudit.ColumnAuditID, AutoKey: true}}
	for _, c := range def.Columns() {
		if c.Name == gaudit.ColumnAuditID {
			continue
		}
		cols = append(cols, ColumnDef{Name: c.Name, Kind: c.Source.Kind})
	}

	var stmts []string
	if stmt := CreateSchema(d, table); stmt != "" {
		stmts = append(stmts, stmt)
	}
	ddl, err := CreateTable(d, table, cols)
	if err != nil {
		return nil, err
	}
	return append(stmts, ddl), nil
}
