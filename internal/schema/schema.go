// Package schema describes the columns of the marketplace tables and renders
// them as SQLite DDL for local and test databases.
package schema

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/classifieds/internal/restore"
)

// FieldType is the storage class of a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInteger
	FieldBool
	FieldJSON
)

func (t FieldType) sqlite() string {
	switch t {
	case FieldNumeric:
		return "NUMERIC"
	case FieldInteger, FieldBool:
		return "INTEGER"
	default:
		// Dates are ISO-8601 text, JSON is stored as text.
		return "TEXT"
	}
}

// FieldSpec defines one column.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Required   bool              // NOT NULL
	EnumValues []string          // Valid values for FieldEnum
	References restore.TableName // Parent table holding the referenced identity
}

// TableSpec is the column layout of a table.
type TableSpec struct {
	Name restore.TableName

	// IDField names the identity column (default: "id").
	IDField string

	// Generated identities are assigned by the database (INTEGER AUTOINCREMENT);
	// otherwise the identity is a caller-supplied TEXT key.
	Generated bool

	Fields []FieldSpec
}

// Identity returns the identity column name.
func (t TableSpec) Identity() string {
	if t.IDField == "" {
		return restore.DefaultIDField
	}
	return t.IDField
}

// Columns returns every column name, identity first.
func (t TableSpec) Columns() []string {
	cols := make([]string, 0, len(t.Fields)+1)
	cols = append(cols, t.Identity())
	for _, f := range t.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// SQLiteStatements renders CREATE TABLE IF NOT EXISTS statements for specs,
// in the given order. A reference to a table not in specs is an error.
func SQLiteStatements(specs []TableSpec) ([]string, error) {
	byName := make(map[restore.TableName]TableSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	stmts := make([]string, 0, len(specs))
	for _, s := range specs {
		stmt, err := s.sqliteDDL(byName)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (t TableSpec) sqliteDDL(byName map[restore.TableName]TableSpec) (string, error) {
	lines := make([]string, 0, len(t.Fields)+1)

	if t.Generated {
		lines = append(lines, quote(t.Identity())+" INTEGER PRIMARY KEY AUTOINCREMENT")
	} else {
		lines = append(lines, quote(t.Identity())+" TEXT PRIMARY KEY")
	}

	for _, f := range t.Fields {
		var b strings.Builder
		b.WriteString(quote(f.Name))
		b.WriteString(" ")
		b.WriteString(f.Type.sqlite())
		if f.Required {
			b.WriteString(" NOT NULL")
		}
		if f.Type == FieldEnum {
			if len(f.EnumValues) == 0 {
				return "", fmt.Errorf("%s.%s: enum without values", t.Name, f.Name)
			}
			vals := make([]string, len(f.EnumValues))
			for i, v := range f.EnumValues {
				vals[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
			}
			fmt.Fprintf(&b, " CHECK (%s IN (%s))", quote(f.Name), strings.Join(vals, ", "))
		}
		if f.References != "" {
			parent, ok := byName[f.References]
			if !ok {
				return "", fmt.Errorf("%s.%s references unknown table %s", t.Name, f.Name, f.References)
			}
			fmt.Fprintf(&b, " REFERENCES %s(%s)", quote(string(parent.Name)), quote(parent.Identity()))
		}
		lines = append(lines, b.String())
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quote(string(t.Name)), strings.Join(lines, ",\n\t")), nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
