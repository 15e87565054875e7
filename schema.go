package gaudit

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/mickamy/gaudit/internal/ident"
	"github.com/mickamy/gaudit/record"
)

// Field describes one entity field.
type Field struct {
	Name string
	Kind record.Kind
	Type reflect.Type // Go type, when known
}

// Annotation marks an entity set as auditable.
type Annotation struct {
	Schema  string
	Pattern AuditPattern
}

// Auditable returns an annotation for Register.
func Auditable(pattern AuditPattern, schema string) *Annotation {
	return &Annotation{Schema: schema, Pattern: pattern}
}

// EntitySet is an entity collection declared by a context. Audit is nil for entities
// that are not audited.
type EntitySet struct {
	Name   string
	Fields []Field
	Audit  *Annotation
}

// MetadataSource enumerates the entity sets of one kind of context. Every context
// built from sources with the same ContextKey shares discovered audit tables.
type MetadataSource interface {
	ContextKey() string
	EntitySets() ([]EntitySet, error)
}

// Model is a MetadataSource populated by explicit registration.
type Model struct {
	key  string
	mu   sync.RWMutex
	sets []EntitySet
}

// NewModel returns an empty model identified by key.
func NewModel(key string) *Model {
	return &Model{key: key}
}

// ContextKey returns the key the model was created with.
func (m *Model) ContextKey() string { return m.key }

// EntitySets returns the registered entity sets in registration order.
func (m *Model) EntitySets() ([]EntitySet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sets), nil
}

// Register declares the struct type T as an entity set of m. A nil annotation
// registers T without auditing it.
func Register[T any](m *Model, ann *Annotation) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("gaudit: register %v: not a struct type", t)
	}
	set := EntitySet{Name: EntityName(t), Fields: describeFields(t)}
	if ann != nil {
		a := *ann
		set.Audit = &a
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sets {
		if s.Name == set.Name {
			return fmt.Errorf("gaudit: register %v: entity %q already registered", t, set.Name)
		}
	}
	m.sets = append(m.sets, set)
	return nil
}

func describeFields(t reflect.Type) []Field {
	sfs := record.Fields(t)
	fields := make([]Field, 0, len(sfs))
	for _, sf := range sfs {
		kind, _ := record.KindOf(sf.Type)
		fields = append(fields, Field{Name: sf.Name, Kind: kind, Type: sf.Type})
	}
	return fields
}

// Column maps an audit table column to the field its value comes from.
type Column struct {
	Name   string
	Source Field
}

// TableDefinition is the derived shape of one audit table. It is immutable once built.
type TableDefinition struct {
	entity  string
	table   string
	schema  string
	pattern AuditPattern
	fields  []Field
	columns []Column
	index   map[string]int
	old     map[string]string
}

// Entity is the audited entity type name.
func (d *TableDefinition) Entity() string { return d.entity }

// Table is the audit table name, without schema.
func (d *TableDefinition) Table() string { return d.table }

// Schema is the audit table schema, empty for the default one.
func (d *TableDefinition) Schema() string { return d.schema }

// Pattern is the audit pattern the table was discovered with.
func (d *TableDefinition) Pattern() AuditPattern { return d.pattern }

// Columns returns a copy of the audit table columns in order.
func (d *TableDefinition) Columns() []Column { return slices.Clone(d.columns) }

// Fields returns a copy of the audited entity fields.
func (d *TableDefinition) Fields() []Field { return slices.Clone(d.fields) }

// IsMetadata reports whether c is a fixed metadata column.
func (d *TableDefinition) IsMetadata(c string) bool { return IsMetadataColumn(c) }

// QualifiedName is the schema-qualified table name, in the form ident.SplitQualified reads.
func (d *TableDefinition) QualifiedName() string {
	return ident.JoinQualified(d.schema, d.table)
}

// Column looks up an audit table column by name.
func (d *TableDefinition) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.columns[i], true
}

// ColumnKind reports the storage kind of a column.
func (d *TableDefinition) ColumnKind(name string) (record.Kind, bool) {
	c, ok := d.Column(name)
	return c.Source.Kind, ok
}

// OldColumn returns the old-value column of an entity field. It only exists under
// KeepCurrentAndOld.
func (d *TableDefinition) OldColumn(field string) (string, bool) {
	c, ok := d.old[field]
	return c, ok
}

func (d *TableDefinition) add(c Column) error {
	if _, dup := d.index[c.Name]; dup {
		return fmt.Errorf("%w: audit table %s: duplicate column %q", ErrConfiguration, d.table, c.Name)
	}
	d.index[c.Name] = len(d.columns)
	d.columns = append(d.columns, c)
	return nil
}

// Definitions holds the audit table definitions of a context, keyed by entity name.
type Definitions struct {
	byEntity map[string]*TableDefinition
	order    []string
}

// Lookup returns the audit table of an entity type name.
func (d Definitions) Lookup(entity string) (*TableDefinition, bool) {
	def, ok := d.byEntity[entity]
	return def, ok
}

// Len is the number of audited entity types.
func (d Definitions) Len() int { return len(d.order) }

// All returns the definitions in discovery order.
func (d Definitions) All() []*TableDefinition {
	out := make([]*TableDefinition, len(d.order))
	for i, name := range d.order {
		out[i] = d.byEntity[name]
	}
	return out
}

// Discover builds one audit table definition per auditable entity set. A non-empty
// forceSchema replaces every annotated schema.
func Discover(sets []EntitySet, naming NamingPolicy, forceSchema string) (Definitions, error) {
	if naming.TableName == nil || naming.OldColumnName == nil {
		return Definitions{}, fmt.Errorf("%w: incomplete naming policy", ErrConfiguration)
	}
	forceSchema = strings.TrimSpace(forceSchema)
	defs := Definitions{byEntity: make(map[string]*TableDefinition)}
	for _, set := range sets {
		if set.Audit == nil {
			continue
		}
		def, err := define(set, naming, forceSchema)
		if err != nil {
			return Definitions{}, err
		}
		if _, dup := defs.byEntity[def.entity]; dup {
			return Definitions{}, fmt.Errorf("%w: entity %q declared twice", ErrConfiguration, def.entity)
		}
		defs.byEntity[def.entity] = def
		defs.order = append(defs.order, def.entity)
	}
	return defs, nil
}

func define(set EntitySet, naming NamingPolicy, forceSchema string) (*TableDefinition, error) {
	if strings.TrimSpace(set.Name) == "" {
		return nil, fmt.Errorf("%w: auditable entity set without a name", ErrConfiguration)
	}
	if !set.Audit.Pattern.valid() {
		return nil, fmt.Errorf("%w: entity %s: invalid audit pattern %s", ErrConfiguration, set.Name, set.Audit.Pattern)
	}
	if len(set.Fields) == 0 {
		return nil, fmt.Errorf("%w: entity %s: no fields to audit", ErrConfiguration, set.Name)
	}

	def := &TableDefinition{
		entity:  set.Name,
		table:   naming.TableName(set.Name),
		schema:  set.Audit.Schema,
		pattern: set.Audit.Pattern,
		fields:  slices.Clone(set.Fields),
		index:   make(map[string]int),
		old:     make(map[string]string),
	}
	if forceSchema != "" {
		def.schema = forceSchema
	}
	if strings.TrimSpace(def.table) == "" {
		return nil, fmt.Errorf("%w: entity %s: empty audit table name", ErrConfiguration, set.Name)
	}

	for _, f := range set.Fields {
		if f.Kind == record.KindNull {
			return nil, fmt.Errorf("%w: entity %s: field %s has unsupported type %v", ErrConfiguration, set.Name, f.Name, f.Type)
		}
		if err := def.add(Column{Name: f.Name, Source: f}); err != nil {
			return nil, err
		}
		if def.pattern == KeepCurrentAndOld {
			oldName := naming.OldColumnName(f.Name)
			if err := def.add(Column{Name: oldName, Source: f}); err != nil {
				return nil, err
			}
			def.old[f.Name] = oldName
		}
	}
	for _, f := range metadataFields {
		if err := def.add(Column{Name: f.Name, Source: f}); err != nil {
			return nil, err
		}
	}
	return def, nil
}
