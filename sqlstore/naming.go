package sqlstore

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/mickamy/gaudit/internal/ident"
	"github.com/mickamy/gaudit/record"
)

// TableNamer provides a custom table name for an entity type.
type TableNamer interface {
	TableName() string
}

var tableNamerType = reflect.TypeOf((*TableNamer)(nil)).Elem()

// resolveTableName names the table of a tracked entity: its TableName when it has
// one, otherwise the plural snake case of its type name.
func resolveTableName(entity any) (string, error) {
	if namer, ok := entity.(TableNamer); ok {
		name := strings.TrimSpace(namer.TableName())
		if name == "" {
			return "", fmt.Errorf("sqlstore: TableName returned empty string. %T", entity)
		}
		return name, nil
	}

	typ := reflect.TypeOf(entity)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return "", fmt.Errorf("sqlstore: unsupported entity %T", entity)
	}
	if reflect.PointerTo(typ).Implements(tableNamerType) {
		return resolveTableName(reflect.New(typ).Interface())
	}
	if typ.Name() == "" {
		return "", fmt.Errorf("sqlstore: cannot derive table name for anonymous struct of type %v", typ)
	}
	return inflection.Plural(ident.Snake(typ.Name())), nil
}

// pickID chooses the key column of a snake_case row: "id" first, then
// "<singular>_id". It returns "" when neither is present.
func pickID(table string, row *record.Row) (string, record.Value) {
	if v, ok := row.Get("id"); ok {
		return "id", v
	}
	singularID := inflection.Singular(ident.BaseTableName(table)) + "_id"
	if v, ok := row.Get(singularID); ok {
		return singularID, v
	}
	return "", record.Null()
}

// setKey writes a generated key into the entity field stored as column col.
func setKey(entity any, col string, v record.Value) error {
	rv := reflect.ValueOf(entity).Elem()
	for _, f := range record.Fields(rv.Type()) {
		if ident.Snake(f.Name) != col {
			continue
		}
		if err := record.Assign(rv.FieldByIndex(f.Index), v); err != nil {
			return fmt.Errorf("sqlstore: set %s: %w", col, err)
		}
		return nil
	}
	return nil
}
