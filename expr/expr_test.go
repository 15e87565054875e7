package expr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/record"
)

type customer struct {
	ID     int64
	Name   string
	Amount float64
	Active bool
}

// auditTable mimics a KeepCurrentAndOld audit table of customer.
type auditTable struct {
	keepOld bool
}

func (a auditTable) ColumnKind(c string) (record.Kind, bool) {
	kinds := map[string]record.Kind{
		"ID": record.KindInt, "Name": record.KindString, "Amount": record.KindFloat, "Active": record.KindBool,
		expr.AuditIDField: record.KindInt, expr.AuditCreateDateField: record.KindTime,
		expr.AuditCreatorUserField: record.KindString, expr.AuditTypeField: record.KindInt,
	}
	if a.keepOld {
		for _, f := range []string{"ID", "Name", "Amount", "Active"} {
			kinds[f+"_Old"] = kinds[f]
		}
	}
	k, ok := kinds[c]
	return k, ok
}

func (a auditTable) OldColumn(f string) (string, bool) {
	if !a.keepOld {
		return "", false
	}
	if _, ok := a.ColumnKind(f); !ok {
		return "", false
	}
	return f + "_Old", true
}

func (auditTable) IsMetadata(c string) bool {
	switch c {
	case expr.AuditIDField, expr.AuditCreateDateField, expr.AuditCreatorUserField, expr.AuditTypeField:
		return true
	}
	return false
}

func TestRewrite(t *testing.T) {
	t.Parallel()

	v := expr.For[customer]()
	tcs := []struct {
		name string
		in   expr.Node
		want string
	}{
		{
			name: "current field equals constant",
			in:   expr.Equal(v.Current("Name"), expr.Val("x")),
			want: `((string)row["Name"] == "x")`,
		},
		{
			name: "audit type metadata",
			in:   expr.Equal(v.AuditType(), expr.Val(3)),
			want: `((int)row["AuditType"] == 3)`,
		},
		{
			name: "old field resolves to old column",
			in:   expr.LessThan(v.Old("Amount"), expr.Val(120.0)),
			want: `((float)row["Amount_Old"] < 120)`,
		},
		{
			name: "boolean field compared with boxed true",
			in:   v.Current("Active"),
			want: `(row["Active"] == (any)true)`,
		},
		{
			name: "conjunction",
			in:   expr.All(v.Current("Active"), expr.GreaterOrEqual(v.Current("Amount"), expr.Val(150.0))),
			want: `((row["Active"] == (any)true) && ((float)row["Amount"] >= 150))`,
		},
		{
			name: "int constant against float column widens to float",
			in:   expr.GreaterThan(v.Current("Amount"), expr.Val(100)),
			want: `((float)row["Amount"] > (float)100)`,
		},
		{
			name: "int column against float constant widens to float",
			in:   expr.LessOrEqual(v.Current("ID"), expr.Val(2.5)),
			want: `((float)row["ID"] <= 2.5)`,
		},
		{
			name: "arithmetic widens before comparing",
			in:   expr.GreaterThan(expr.Binary{Op: expr.Add, Left: v.Current("Amount"), Right: expr.Val(1)}, expr.Val(100)),
			want: `(((float)row["Amount"] + (float)1) > (float)100)`,
		},
		{
			name: "explicit conversion is kept",
			in:   expr.Equal(expr.Conv(v.Current("ID"), expr.TypeFloat), expr.Val(1.0)),
			want: `((float)row["ID"] == 1)`,
		},
		{
			name: "call passes through",
			in:   expr.Call{Name: "ok", Returns: expr.TypeBool},
			want: `ok()`,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := expr.Rewrite(tc.in, auditTable{keepOld: true})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestRewrite_Errors(t *testing.T) {
	t.Parallel()

	v := expr.For[customer]()
	tcs := []struct {
		name    string
		in      expr.Node
		keepOld bool
		want    error
	}{
		{name: "shift", in: expr.Equal(expr.Binary{Op: expr.Shl, Left: v.Current("ID"), Right: expr.Val(1)}, expr.Val(2)), keepOld: true, want: expr.ErrUnsupported},
		{name: "coalesce", in: expr.Binary{Op: expr.Coalesce, Left: v.Current("Active"), Right: expr.Val(false)}, keepOld: true, want: expr.ErrUnsupported},
		{name: "unary", in: expr.Negation(v.Current("Active")), keepOld: true, want: expr.ErrUnsupported},
		{name: "unknown field", in: expr.Equal(v.Current("Missing"), expr.Val(1)), keepOld: true, want: expr.ErrUnsupported},
		{name: "old field without old columns", in: expr.Equal(v.Old("Name"), expr.Val("x")), keepOld: false, want: expr.ErrUnsupported},
		{name: "metadata through current data", in: expr.Equal(expr.Field{Scope: expr.ScopeCurrent, Name: expr.AuditTypeField, Of: expr.TypeInt}, expr.Val(1)), keepOld: true, want: expr.ErrUnsupported},
		{name: "nil", in: nil, keepOld: true, want: expr.ErrInvalidArgument},
		{name: "nil operand", in: expr.Binary{Op: expr.Eq, Left: v.Current("ID")}, keepOld: true, want: expr.ErrInvalidArgument},
		{name: "not a predicate", in: v.Current("Name"), keepOld: true, want: expr.ErrInvalidArgument},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := expr.Rewrite(tc.in, auditTable{keepOld: tc.keepOld})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("operator is named", func(t *testing.T) {
		t.Parallel()
		_, err := expr.Rewrite(expr.Binary{Op: expr.Shr, Left: v.Current("ID"), Right: expr.Val(1)}, auditTable{keepOld: true})
		var ue *expr.UnsupportedError
		require.True(t, errors.As(err, &ue))
		assert.Contains(t, ue.Error(), ">>")
	})
}

func TestPredicate_Match(t *testing.T) {
	t.Parallel()

	row := record.NewRow(4)
	row.Set("Name", record.String("acme"))
	row.Set("Amount", record.Float(150))
	row.Set("Amount_Old", record.Float(100))
	row.Set("Active", record.Bool(true))
	row.Set("AuditType", record.Int(2))

	v := expr.For[customer]()
	tcs := []struct {
		name string
		in   expr.Node
		want bool
	}{
		{name: "string equality", in: expr.Equal(v.Current("Name"), expr.Val("acme")), want: true},
		{name: "old and current", in: expr.All(expr.Equal(v.Old("Amount"), expr.Val(100.0)), expr.Equal(v.Current("Amount"), expr.Val(150.0))), want: true},
		{name: "int literal against float column", in: expr.GreaterThan(v.Current("Amount"), expr.Val(149)), want: true},
		{name: "boolean field", in: v.Current("Active"), want: true},
		{name: "metadata", in: expr.Equal(v.AuditType(), expr.Val(3)), want: false},
		{name: "disjunction", in: expr.Any(expr.Equal(v.AuditType(), expr.Val(3)), expr.NotEqual(v.Current("Name"), expr.Val("x"))), want: true},
		{name: "arithmetic", in: expr.Equal(expr.Binary{Op: expr.SubAssign, Left: v.Current("Amount"), Right: v.Old("Amount")}, expr.Val(50.0)), want: true},
		{name: "missing column is null", in: expr.Equal(v.Current("ID"), expr.Val(1)), want: false},
		{name: "ordering against null", in: expr.LessThan(v.Current("ID"), expr.Val(1)), want: false},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := expr.Rewrite(tc.in, auditTable{keepOld: true})
			require.NoError(t, err)
			got, err := p.Match(row)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, p.String())
		})
	}

	t.Run("nil predicate matches", func(t *testing.T) {
		t.Parallel()
		var p *expr.Predicate
		ok, err := p.Match(row)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPredicate_Match_NumericPromotion(t *testing.T) {
	t.Parallel()

	v := expr.For[customer]()
	tcs := []struct {
		name   string
		amount float64
		id     int64
		in     expr.Node
		want   bool
	}{
		{name: "fraction above int bound", amount: 100.5, in: expr.GreaterThan(v.Current("Amount"), expr.Val(100)), want: true},
		{name: "fraction below int bound", amount: 99.5, in: expr.GreaterThan(v.Current("Amount"), expr.Val(100)), want: false},
		{name: "fraction is not zero", amount: 0.5, in: expr.Equal(v.Current("Amount"), expr.Val(0)), want: false},
		{name: "whole float equals int", amount: 7, in: expr.Equal(v.Current("Amount"), expr.Val(7)), want: true},
		{name: "int column against fractional constant", id: 2, in: expr.LessThan(v.Current("ID"), expr.Val(2.5)), want: true},
		{name: "int column equals whole float", id: 3, in: expr.Equal(v.Current("ID"), expr.Val(3.0)), want: true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			row := record.NewRow(2)
			row.Set("Amount", record.Float(tc.amount))
			row.Set("ID", record.Int(tc.id))

			p, err := expr.Rewrite(tc.in, auditTable{keepOld: true})
			require.NoError(t, err)
			got, err := p.Match(row)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, p.String())
		})
	}
}

func TestEval_DivideByZero(t *testing.T) {
	t.Parallel()

	_, err := expr.Eval(expr.Binary{Op: expr.Div, Left: expr.Val(1), Right: expr.Val(0)}, record.NewRow(0))
	assert.ErrorIs(t, err, expr.ErrDivideByZero)
}
