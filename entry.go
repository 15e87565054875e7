package gaudit

import (
	"github.com/mickamy/gaudit/record"
)

// ChangeRecord is one pending entity mutation captured for auditing.
type ChangeRecord struct {
	Current  *record.Row
	Table    *TableDefinition
	Previous *record.Row // old-column names; KeepCurrentAndOld updates (changed fields) and deletes only
	Kind     AuditType
}

// Capture turns pending mutations into change records, in mutation order. Unchanged and
// detached entries and entities without an audit table are skipped.
func Capture(mutations []Mutation, defs Definitions, naming NamingPolicy) []ChangeRecord {
	var out []ChangeRecord
	for _, m := range mutations {
		if m.State == Unchanged || m.State == Detached {
			continue
		}
		def, ok := defs.Lookup(m.Entity)
		if !ok {
			continue
		}
		rec := ChangeRecord{Current: m.Current.Clone(), Table: def, Kind: auditTypeOf(m.State)}
		if def.Pattern() == KeepCurrentAndOld {
			switch m.State {
			case Modified:
				rec.Previous = changed(m.Current, m.Original).Rename(naming.OldColumnName)
			case Deleted:
				prev := m.Original
				if prev == nil {
					prev = m.Current
				}
				rec.Previous = prev.Rename(naming.OldColumnName)
			}
		}
		out = append(out, rec)
	}
	return out
}

// changed returns the original values of the fields whose current value differs.
func changed(current, original *record.Row) *record.Row {
	out := record.NewRow(original.Len())
	for _, k := range original.Keys() {
		ov, _ := original.Get(k)
		if cv, ok := current.Get(k); ok && cv.Equal(ov) {
			continue
		}
		out.Set(k, ov)
	}
	return out
}

func auditTypeOf(s EntityState) AuditType {
	switch s {
	case Added:
		return AuditInsert
	case Modified:
		return AuditUpdate
	case Deleted:
		return AuditDelete
	default:
		return AuditNone
	}
}
