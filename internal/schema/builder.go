// Package schema assembles form schemas, start values and fieldset
// grouping for a model from its descriptor and widget bindings.
package schema

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// Empty-value sentinels for temporal fields without a value.
const (
	ZeroDate     = "0000-00-00"
	ZeroDateTime = "0000-00-00T00:00:00"
	ZeroTime     = "00:00:00"
)

// Options is the form part of an admin definition.
type Options struct {
	Fields         Layout
	Exclude        []string
	Fieldsets      []Fieldset
	ReadOnly       []string
	ReadOnlyOnEdit []string
	Widgets        map[string]widgets.Source
	WidgetConfig   map[string]map[string]any
}

// Builder compiles forms against a descriptor source and a frozen widget
// registry.
type Builder struct {
	Source   descriptor.Source
	Registry *widgets.Registry
	Loader   widgets.ChoiceLoader
}

// Form is a compiled form definition for one model. Widget resolution and
// layout validation happen once in Compile.
type Form struct {
	model    *descriptor.Model
	fields   []string
	opts     Options
	resolved map[string]widgets.Resolved
	targets  map[string]*descriptor.Model
	grouping *Grouping
	loader   widgets.ChoiceLoader
}

// Result is the assembled form for one request.
type Result struct {
	Schema     map[string]any `json:"schema"`
	StartValue map[string]any `json:"startValue"`
	Required   []string       `json:"required"`
	Fields     []string       `json:"fields"`
	Assets     widgets.Assets `json:"assets"`
}

// VisibleFields returns the form's field order: the explicit layout (or
// fieldsets) when configured, else every field except the primary key and
// binary fields; Exclude is applied last. Unknown names are configuration
// errors.
func VisibleFields(m *descriptor.Model, opts Options) ([]string, error) {
	var names []string
	switch {
	case len(opts.Fields) > 0:
		names = opts.Fields.Fields()
	case len(opts.Fieldsets) > 0:
		names = Flatten(opts.Fieldsets)
	default:
		for _, f := range m.Fields() {
			if f.Name == m.PKAttr() || f.Kind == descriptor.KindBinary {
				continue
			}
			names = append(names, f.Name)
		}
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !m.Has(n) {
			return nil, adminerr.Configf(m.ID().String(), n, "unknown field in layout")
		}
		if seen[n] || slices.Contains(opts.Exclude, n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	for _, n := range opts.Exclude {
		if !m.Has(n) {
			return nil, adminerr.Configf(m.ID().String(), n, "unknown field in exclude")
		}
	}
	return out, nil
}

// Compile validates opts against m and resolves every visible field's
// widget.
func (b *Builder) Compile(m *descriptor.Model, opts Options) (*Form, error) {
	fields, err := VisibleFields(m, opts)
	if err != nil {
		return nil, err
	}
	for _, group := range [][]string{opts.ReadOnly, opts.ReadOnlyOnEdit} {
		for _, n := range group {
			if !m.Has(n) {
				return nil, adminerr.Configf(m.ID().String(), n, "unknown read-only field")
			}
		}
	}
	for n := range opts.Widgets {
		if !m.Has(n) {
			return nil, adminerr.Configf(m.ID().String(), n, "widget override for unknown field")
		}
	}
	f := &Form{
		model:    m,
		fields:   fields,
		opts:     opts,
		resolved: make(map[string]widgets.Resolved, len(fields)),
		targets:  make(map[string]*descriptor.Model),
		loader:   b.Loader,
	}
	for _, name := range fields {
		fd, _ := m.Field(name)
		res, err := b.Registry.Resolve(m.ID(), fd, opts.Widgets[name])
		if err != nil {
			return nil, err
		}
		f.resolved[name] = res
		if fd.Relation != nil {
			target, err := b.Source.ModelDescriptor(fd.Relation.Target)
			if err != nil {
				return nil, adminerr.Configf(m.ID().String(), name, "relation target %s: %v", fd.Relation.Target, err)
			}
			if label := labelField(fd, opts.WidgetConfig[name]); label != "" && !target.Has(label) {
				return nil, adminerr.Configf(m.ID().String(), name, "label field %s not declared on %s", label, target.ID())
			}
			f.targets[name] = target
		}
	}
	if len(opts.Fieldsets) > 0 {
		if f.grouping, err = NewGrouping(m.ID(), opts.Fieldsets, fields); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Model returns the described model.
func (f *Form) Model() *descriptor.Model { return f.model }

// Fields returns the visible field order.
func (f *Form) Fields() []string { return slices.Clone(f.fields) }

// Grouping returns the fieldset grouping, nil when none is configured.
func (f *Form) Grouping() *Grouping { return f.grouping }

// WidgetKey returns the resolved widget key of a visible field.
func (f *Form) WidgetKey(field string) string { return f.resolved[field].Key }

// IsReadOnly reports whether field is read-only in mode.
func (f *Form) IsReadOnly(field string, mode widgets.Mode) bool {
	if slices.Contains(f.opts.ReadOnly, field) {
		return true
	}
	return mode == widgets.ModeEdit && slices.Contains(f.opts.ReadOnlyOnEdit, field)
}

// Bind instantiates the widgets of every visible field for one request.
func (f *Form) Bind(mode widgets.Mode, instance store.Row) ([]widgets.Widget, error) {
	choices := widgets.NewChoiceTable()
	out := make([]widgets.Widget, 0, len(f.fields))
	for _, name := range f.fields {
		fd, _ := f.model.Field(name)
		w, err := f.resolved[name].Factory(widgets.Binding{
			Model:    f.model.ID(),
			Field:    fd,
			Target:   f.targets[name],
			Mode:     mode,
			Instance: instance,
			ReadOnly: f.IsReadOnly(name, mode),
			Config:   f.opts.WidgetConfig[name],
			Choices:  choices,
			Loader:   f.loader,
		})
		if err != nil {
			return nil, adminerr.Configf(f.model.ID().String(), name, "bind widget: %v", err)
		}
		out = append(out, w)
	}
	return out, nil
}

// Check reports fields that can never be filled in add mode: required,
// read-only, without default and not auto-populated temporal fields.
func (f *Form) Check() error {
	for _, name := range f.fields {
		fd, _ := f.model.Field(name)
		if !fd.Required || !f.IsReadOnly(name, widgets.ModeAdd) || fd.Default.IsSet() {
			continue
		}
		if fd.AutoPopulated && fd.Kind.IsTemporal() {
			continue
		}
		return adminerr.Configf(f.model.ID().String(), name, "required read-only field without default cannot be filled when adding")
	}
	return nil
}

// Build binds and prefetches every visible field's widget and assembles
// the schema. Prefetches run concurrently; output follows field order.
func (f *Form) Build(ctx context.Context, mode widgets.Mode, instance store.Row) (*Result, error) {
	if mode == widgets.ModeAdd {
		if err := f.Check(); err != nil {
			return nil, err
		}
	}
	ws, err := f.Bind(mode, instance)
	if err != nil {
		return nil, err
	}
	eg, egctx := errgroup.WithContext(ctx)
	for _, w := range ws {
		eg.Go(func() error { return w.Prefetch(egctx) })
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	props := make(map[string]any, len(ws))
	start := make(map[string]any, len(ws))
	required := []string{}
	var assets widgets.Assets
	for i, w := range ws {
		name := f.fields[i]
		fd, _ := f.model.Field(name)
		props[name] = map[string]any(w.Schema())
		assets = assets.Merge(w.Assets())
		if fd.Required && !f.IsReadOnly(name, mode) {
			required = append(required, name)
		}
		if v, ok := startValue(w, fd); ok {
			start[name] = v
		}
	}

	res := &Result{Fields: f.Fields(), Assets: assets}
	if f.grouping == nil {
		res.Schema = flatSchema(f.fields, props, required)
		res.StartValue = start
		res.Required = required
		return res, nil
	}
	res.Schema, res.Required = f.grouping.schema(props, required)
	res.StartValue = f.grouping.Group(start)
	return res, nil
}

func startValue(w widgets.Widget, fd descriptor.Field) (any, bool) {
	if v, ok := w.StartValue(); ok {
		return v, true
	}
	if v, ok := fd.Default.Resolve(); ok {
		return fd.Kind.Format(v), true
	}
	if fd.Required {
		return nil, false
	}
	return EmptyValue(fd)
}

// EmptyValue returns the kind sentinel used for optional fields without a
// value. Kinds without a sentinel report false.
func EmptyValue(fd descriptor.Field) (any, bool) {
	if fd.IsMultiValued() {
		return []any{}, true
	}
	switch fd.Kind {
	case descriptor.KindString, descriptor.KindText:
		return "", true
	case descriptor.KindDate:
		return ZeroDate, true
	case descriptor.KindDateTime:
		return ZeroDateTime, true
	case descriptor.KindTime:
		return ZeroTime, true
	}
	return nil, false
}

// labelField is the relation label column named by widget config or field
// meta; empty means the loader picks one.
func labelField(fd descriptor.Field, cfg map[string]any) string {
	if l, ok := cfg["label_field"].(string); ok && l != "" {
		return l
	}
	return fd.MetaString("label_field")
}
