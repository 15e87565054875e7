package gaudit

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mickamy/gaudit/record"
)

// AuditView is one audit row read back as entity values.
type AuditView[T any] struct {
	AuditID            int64
	AuditCreateDate    time.Time
	AuditCreatorUserID string
	AuditType          AuditType
	CurrentData        T
	OldData            T
}

// Data returns CurrentData for inserts and updates and OldData otherwise.
func (v AuditView[T]) Data() T {
	switch v.AuditType {
	case AuditInsert, AuditUpdate:
		return v.CurrentData
	default:
		return v.OldData
	}
}

// Materialize builds one view per row, in row order. Columns absent from def are
// ignored. Under KeepCurrentAndOld, old columns fill OldData and the rest CurrentData;
// under KeepCurrent every entity column fills CurrentData.
func Materialize[T any](def *TableDefinition, rows []*record.Row) ([]AuditView[T], error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil table definition", ErrInvalidArgument)
	}
	if t := reflect.TypeOf((*T)(nil)).Elem(); t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("gaudit: materialize %v: not a struct type", t)
	}
	out := make([]AuditView[T], 0, len(rows))
	for i, row := range rows {
		var v AuditView[T]
		if err := fill(&v, def, row); err != nil {
			return nil, fmt.Errorf("gaudit: materialize %s row %d: %w", def.Table(), i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func fill[T any](v *AuditView[T], def *TableDefinition, row *record.Row) error {
	current := reflect.ValueOf(&v.CurrentData).Elem()
	old := reflect.ValueOf(&v.OldData).Elem()
	for _, name := range row.Keys() {
		col, ok := def.Column(name)
		if !ok {
			continue
		}
		val, _ := row.Get(name)
		if IsMetadataColumn(name) {
			if err := setMetadata(v, name, val); err != nil {
				return err
			}
			continue
		}
		dst := old
		if _, isCurrent := def.OldColumn(name); isCurrent || def.Pattern() == KeepCurrent {
			dst = current
		}
		f := dst.FieldByName(col.Source.Name)
		if !f.IsValid() || !f.CanSet() {
			continue
		}
		if err := record.Assign(f, val); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
	}
	return nil
}

func setMetadata[T any](v *AuditView[T], name string, val record.Value) error {
	var dst any
	switch name {
	case ColumnAuditID:
		dst = &v.AuditID
	case ColumnAuditCreateDate:
		dst = &v.AuditCreateDate
	case ColumnAuditCreator:
		dst = &v.AuditCreatorUserID
	case ColumnAuditType:
		dst = &v.AuditType
	}
	if err := record.Assign(reflect.ValueOf(dst).Elem(), val); err != nil {
		return fmt.Errorf("column %s: %w", name, err)
	}
	return nil
}
