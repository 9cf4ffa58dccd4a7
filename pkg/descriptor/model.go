package descriptor

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
)

// Model is the immutable description of one model. Accessors hand out copies.
type Model struct {
	id          ModelID
	pk          string
	table       string
	verbose     string
	verboseMany string
	fields      []Field
	index       map[string]int
}

// ModelOptions carries the optional parts of a model description.
type ModelOptions struct {
	Table             string
	VerboseName       string
	VerboseNamePlural string
}

// NewModel validates and freezes a model description.
func NewModel(id ModelID, pk string, opts ModelOptions, fields ...Field) (*Model, error) {
	if id.App == "" || id.Model == "" {
		return nil, adminerr.Configf(id.String(), "", "model id requires app and model")
	}
	m := &Model{
		id:          id,
		pk:          pk,
		table:       opts.Table,
		verbose:     opts.VerboseName,
		verboseMany: opts.VerboseNamePlural,
		fields:      make([]Field, 0, len(fields)),
		index:       make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, adminerr.Configf(id.String(), "", "field without name")
		}
		if !f.Kind.Valid() {
			return nil, adminerr.Configf(id.String(), f.Name, "invalid kind %s", f.Kind)
		}
		if _, dup := m.index[f.Name]; dup {
			return nil, adminerr.Configf(id.String(), f.Name, "duplicate field name")
		}
		if f.Relation != nil && f.Relation.Target.IsZero() {
			return nil, adminerr.Configf(id.String(), f.Name, "relation without target")
		}
		m.index[f.Name] = len(m.fields)
		m.fields = append(m.fields, f.clone())
	}
	if pk == "" {
		return nil, adminerr.Configf(id.String(), "", "primary key attribute not declared")
	}
	if _, ok := m.index[pk]; !ok {
		return nil, adminerr.Configf(id.String(), pk, "primary key is not a declared field")
	}
	if m.table == "" {
		m.table = id.App + "_" + id.Model
	}
	if m.verbose == "" {
		m.verbose = strings.ReplaceAll(id.Model, "_", " ")
	}
	if m.verboseMany == "" {
		m.verboseMany = inflection.Plural(m.verbose)
	}
	return m, nil
}

// MustModel is NewModel for static declarations in tests and examples.
func MustModel(id ModelID, pk string, opts ModelOptions, fields ...Field) *Model {
	m, err := NewModel(id, pk, opts, fields...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Model) ID() ModelID { return m.id }

// PKAttr returns the primary key field name.
func (m *Model) PKAttr() string { return m.pk }

// PKField returns the primary key field.
func (m *Model) PKField() Field { return m.fields[m.index[m.pk]].clone() }

func (m *Model) Table() string { return m.table }

func (m *Model) VerboseName() string { return m.verbose }

func (m *Model) VerboseNamePlural() string { return m.verboseMany }

// Len returns the number of fields.
func (m *Model) Len() int { return len(m.fields) }

// Fields returns the ordered field list.
func (m *Model) Fields() []Field {
	out := make([]Field, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.clone()
	}
	return out
}

// FieldNames returns the ordered field names.
func (m *Model) FieldNames() []string {
	out := make([]string, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field by name.
func (m *Model) Field(name string) (Field, bool) {
	i, ok := m.index[name]
	if !ok {
		return Field{}, false
	}
	return m.fields[i].clone(), true
}

// Has reports whether name is a declared field.
func (m *Model) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

func (m *Model) String() string {
	return fmt.Sprintf("%s(%d fields)", m.id, len(m.fields))
}
