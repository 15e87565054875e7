package gaudit

import (
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/mickamy/gaudit/internal/ident"
)

// Placeholder is substituted with the entity or field name in naming templates.
const Placeholder = "{0}"

// NamingPolicy derives audit table names and old-value column names.
type NamingPolicy struct {
	TableName     func(entity string) string
	OldColumnName func(field string) string
}

// TemplateNaming substitutes the entity name into tableTemplate and the field name
// into oldColumnTemplate, e.g. "{0}_Audit" and "{0}_Old".
func TemplateNaming(tableTemplate, oldColumnTemplate string) NamingPolicy {
	return NamingPolicy{
		TableName:     template(tableTemplate),
		OldColumnName: template(oldColumnTemplate),
	}
}

// SnakeNaming is TemplateNaming applied to the pluralized snake case entity name, so
// Invoice becomes invoices_audit under the template "{0}_audit".
func SnakeNaming(tableTemplate, oldColumnTemplate string) NamingPolicy {
	table := template(tableTemplate)
	return NamingPolicy{
		TableName: func(entity string) string {
			return table(inflection.Plural(ident.Snake(entity)))
		},
		OldColumnName: template(oldColumnTemplate),
	}
}

func template(tpl string) func(string) string {
	return func(name string) string {
		return strings.ReplaceAll(tpl, Placeholder, name)
	}
}

// complete fills missing functions from the option templates.
func (n NamingPolicy) complete(o Options) NamingPolicy {
	def := TemplateNaming(o.AuditTableNameTemplate, o.AuditOldColumnNameTemplate)
	if n.TableName == nil {
		n.TableName = def.TableName
	}
	if n.OldColumnName == nil {
		n.OldColumnName = def.OldColumnName
	}
	return n
}
