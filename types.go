package gaudit

import (
	"context"
	"fmt"
	"reflect"

	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/record"
)

// AuditPattern controls which state an audit row keeps.
type AuditPattern int

const (
	// KeepCurrent stores only post-change values.
	KeepCurrent AuditPattern = iota
	// KeepCurrentAndOld stores post-change values plus pre-change values under old column names.
	KeepCurrentAndOld
)

func (p AuditPattern) String() string {
	switch p {
	case KeepCurrent:
		return "KeepCurrent"
	case KeepCurrentAndOld:
		return "KeepCurrentAndOld"
	default:
		return fmt.Sprintf("AuditPattern(%d)", int(p))
	}
}

func (p AuditPattern) valid() bool { return p == KeepCurrent || p == KeepCurrentAndOld }

// AuditType classifies the mutation an audit row records.
type AuditType int

const (
	AuditNone   AuditType = iota // not a mutation
	AuditInsert                  // row holds the inserted entity
	AuditUpdate                  // row holds the new entity and changed old values
	AuditDelete                  // row holds the deleted entity
)

func (t AuditType) String() string {
	switch t {
	case AuditNone:
		return "None"
	case AuditInsert:
		return "Insert"
	case AuditUpdate:
		return "Update"
	case AuditDelete:
		return "Delete"
	default:
		return fmt.Sprintf("AuditType(%d)", int(t))
	}
}

// Metadata columns present on every audit table.
const (
	ColumnAuditID         = expr.AuditIDField
	ColumnAuditCreateDate = expr.AuditCreateDateField
	ColumnAuditCreator    = expr.AuditCreatorUserField
	ColumnAuditType       = expr.AuditTypeField
)

// ActorNotSet is recorded as the creator when no actor can be resolved.
const ActorNotSet = "NotSet"

var metadataFields = []Field{
	{Name: ColumnAuditID, Kind: record.KindInt},
	{Name: ColumnAuditCreateDate, Kind: record.KindTime},
	{Name: ColumnAuditCreator, Kind: record.KindString},
	{Name: ColumnAuditType, Kind: record.KindInt},
}

// IsMetadataColumn reports whether name is one of the fixed audit metadata columns.
func IsMetadataColumn(name string) bool {
	switch name {
	case ColumnAuditID, ColumnAuditCreateDate, ColumnAuditCreator, ColumnAuditType:
		return true
	}
	return false
}

// EntityState is the change-tracking classification of a pending entity.
type EntityState int

const (
	Unchanged EntityState = iota
	Added
	Modified
	Deleted
	Detached
)

func (s EntityState) String() string {
	switch s {
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	case Detached:
		return "Detached"
	default:
		return fmt.Sprintf("EntityState(%d)", int(s))
	}
}

// Mutation is one pending entity change reported by a change source.
type Mutation struct {
	Entity   string
	State    EntityState
	Current  *record.Row
	Original *record.Row // values as loaded or last persisted; nil for Added
}

// ChangeSource enumerates pending mutations in a stable order.
type ChangeSource interface {
	PendingMutations() []Mutation
}

// RecordSet is an appendable collection of untyped rows bound to one table.
type RecordSet interface {
	Add(row *record.Row)
}

// Store is the persistence engine gaudit sits on.
type Store interface {
	ChangeSource
	// Persist commits every pending change, including rows added through RecordSet.
	// When acceptAll is true, the pending set is cleared after success.
	Persist(ctx context.Context, acceptAll bool) (int, error)
	// RecordSet returns the staging collection for a possibly schema-qualified table.
	RecordSet(table string) RecordSet
	// Query returns the rows of table matching p; a nil p matches every row.
	Query(ctx context.Context, table string, p *expr.Predicate) ([]*record.Row, error)
}

// EntityName is the name under which entities of type t are registered and tracked.
func EntityName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
