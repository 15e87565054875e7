package gaudit

import (
	"time"

	"github.com/mickamy/gaudit/record"
)

// AuditRow is a column payload bound for one audit table.
type AuditRow struct {
	Table string // schema-qualified
	Data  *record.Row
}

// Synthesizer turns captured change records into audit rows.
type Synthesizer func(records []ChangeRecord, actor string, now time.Time) []AuditRow

// Synthesize is the default Synthesizer. It has no side effects. An empty actor is
// recorded as ActorNotSet. AuditId is left to the store.
func Synthesize(records []ChangeRecord, actor string, now time.Time) []AuditRow {
	if actor == "" {
		actor = ActorNotSet
	}
	rows := make([]AuditRow, 0, len(records))
	for _, rec := range records {
		var data *record.Row
		keepOld := rec.Table.Pattern() == KeepCurrentAndOld
		switch rec.Kind {
		case AuditInsert:
			data = rec.Current.Clone()
		case AuditUpdate:
			data = rec.Current.Clone()
			if keepOld {
				data.Merge(rec.Previous)
			}
		case AuditDelete:
			if keepOld && rec.Previous != nil {
				data = rec.Previous.Clone()
			} else {
				data = rec.Current.Clone()
			}
		default:
			continue
		}
		data.Set(ColumnAuditCreateDate, record.Time(now))
		data.Set(ColumnAuditCreator, record.String(actor))
		data.Set(ColumnAuditType, record.Int(int64(rec.Kind)))
		rows = append(rows, AuditRow{Table: rec.Table.QualifiedName(), Data: data})
	}
	return rows
}
