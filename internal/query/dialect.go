package query

import (
	"strconv"

	"github.com/mickamy/gaudit/internal/ident"
	"github.com/mickamy/gaudit/record"
)

// Dialect holds the syntax differences between the supported databases.
type Dialect struct {
	Name        string
	quote       func(string) string
	placeholder func(n int) string
	types       map[record.Kind]string
	autoKey     string
	returning   bool
}

var Postgres = Dialect{
	Name:        "postgres",
	quote:       ident.Quote,
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	types: map[record.Kind]string{
		record.KindString: "TEXT",
		record.KindInt:    "BIGINT",
		record.KindFloat:  "DOUBLE PRECISION",
		record.KindBool:   "BOOLEAN",
		record.KindTime:   "TIMESTAMPTZ",
	},
	autoKey:   "BIGSERIAL PRIMARY KEY",
	returning: true,
}

var MySQL = Dialect{
	Name:        "mysql",
	quote:       ident.QuoteBacktick,
	placeholder: func(int) string { return "?" },
	types: map[record.Kind]string{
		record.KindString: "TEXT",
		record.KindInt:    "BIGINT",
		record.KindFloat:  "DOUBLE",
		record.KindBool:   "BOOLEAN",
		record.KindTime:   "DATETIME(6)",
	},
	autoKey: "BIGINT AUTO_INCREMENT PRIMARY KEY",
}

// DialectFor maps a driver or gorm dialector name to a dialect.
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case "postgres", "pgx", "postgresql":
		return Postgres, true
	case "mysql":
		return MySQL, true
	}
	return Dialect{}, false
}

// Unnumbered returns d with "?" placeholders, the form gorm rebinds per driver.
func (d Dialect) Unnumbered() Dialect {
	d.placeholder = func(int) string { return "?" }
	return d
}

// Quote quotes a single identifier.
func (d Dialect) Quote(name string) string { return d.quote(name) }

// QuoteTable quotes a possibly schema-qualified table name.
func (d Dialect) QuoteTable(qualified string) string {
	return ident.QuoteQualifiedWith(ident.SplitQualified(qualified), d.quote)
}

// SupportsReturning reports whether INSERT ... RETURNING is available.
func (d Dialect) SupportsReturning() bool { return d.returning }

// args accumulates bind arguments for one statement.
type args struct {
	d    Dialect
	vals []any
}

func (a *args) bind(v any) string {
	a.vals = append(a.vals, v)
	return a.d.placeholder(len(a.vals))
}
