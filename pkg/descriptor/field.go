package descriptor

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/iancoleman/strcase"
)

// ModelID is the stable identity of a model.
type ModelID struct {
	App   string `json:"app" yaml:"app"`
	Model string `json:"model" yaml:"model"`
}

func (id ModelID) String() string { return id.App + "." + id.Model }

// IsZero reports whether id is unset.
func (id ModelID) IsZero() bool { return id.App == "" && id.Model == "" }

// ParseModelID parses the "app.model" form.
func ParseModelID(s string) (ModelID, error) {
	app, model, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || app == "" || model == "" || strings.Contains(model, ".") {
		return ModelID{}, fmt.Errorf("invalid model id %q, want app.model", s)
	}
	return ModelID{App: app, Model: model}, nil
}

// RelationKind distinguishes single-valued and multi-valued relations.
type RelationKind uint8

const (
	RelationFK RelationKind = iota + 1
	RelationM2M
)

func (k RelationKind) String() string {
	switch k {
	case RelationFK:
		return "fk"
	case RelationM2M:
		return "m2m"
	}
	return "invalid"
}

// ParseRelationKind maps "fk" and "m2m" to their RelationKind.
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fk", "foreignkey", "foreign_key":
		return RelationFK, nil
	case "m2m", "manytomany", "many_to_many":
		return RelationM2M, nil
	}
	return 0, fmt.Errorf("unknown relation kind %q", s)
}

// Relation points a field at another model.
type Relation struct {
	Kind   RelationKind
	Target ModelID
}

// Choice is one ordered value/label pair.
type Choice struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// Default holds either a static value or a zero-argument producer.
type Default struct {
	value    any
	producer func() any
	set      bool
}

// StaticDefault returns a Default that always yields v.
func StaticDefault(v any) Default { return Default{value: v, set: true} }

// ProducerDefault returns a Default that calls fn each time it is resolved.
func ProducerDefault(fn func() any) Default {
	if fn == nil {
		return Default{}
	}
	return Default{producer: fn, set: true}
}

// IsSet reports whether a default was declared.
func (d Default) IsSet() bool { return d.set }

// Resolve returns the default value, invoking the producer when present.
func (d Default) Resolve() (any, bool) {
	if !d.set {
		return nil, false
	}
	if d.producer != nil {
		return d.producer(), true
	}
	return d.value, true
}

// Field describes one field of a model.
type Field struct {
	Name     string
	Kind     Kind
	Relation *Relation
	Required bool
	Nullable bool
	Default  Default
	Choices  []Choice
	Meta     map[string]any

	// AutoPopulated marks temporal fields the system fills in (created_at and the like).
	AutoPopulated bool
	MaxLength     int
	Column        string
}

// IsRelation reports whether the field points at another model.
func (f Field) IsRelation() bool { return f.Relation != nil }

// IsMultiValued reports m2m relations.
func (f Field) IsMultiValued() bool { return f.Relation != nil && f.Relation.Kind == RelationM2M }

// HasChoices reports a non-empty choice list.
func (f Field) HasChoices() bool { return len(f.Choices) > 0 }

// ColumnName returns the storage column, defaulting to the field name.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// HasColumn reports whether the field is backed by a real column.
func (f Field) HasColumn() bool { return !f.IsMultiValued() }

// MetaString returns a string meta entry or "".
func (f Field) MetaString(key string) string {
	if s, ok := f.Meta[key].(string); ok {
		return s
	}
	return ""
}

// Label returns meta "label", else the humanized name.
func (f Field) Label() string {
	if l := f.MetaString("label"); l != "" {
		return l
	}
	return Humanize(f.Name)
}

// Humanize turns "created_at" or "createdAt" into "Created at".
func Humanize(name string) string {
	s := strcase.ToDelimited(name, ' ')
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func (f Field) clone() Field {
	out := f
	out.Meta = maps.Clone(f.Meta)
	out.Choices = slices.Clone(f.Choices)
	if f.Relation != nil {
		r := *f.Relation
		out.Relation = &r
	}
	return out
}
