package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/admin"
	"github.com/faciam-dev/gcadmin/internal/schema"
	"github.com/faciam-dev/gcadmin/internal/util"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// SiteFile is the declarative site definition: model descriptors plus the
// admins registered for them.
type SiteFile struct {
	Models []ModelDef `yaml:"models"`
	Admins []AdminDef `yaml:"admins"`
}

type ModelDef struct {
	App               string     `yaml:"app"`
	Model             string     `yaml:"model"`
	PK                string     `yaml:"pk"`
	Table             string     `yaml:"table"`
	VerboseName       string     `yaml:"verbose_name"`
	VerboseNamePlural string     `yaml:"verbose_name_plural"`
	Fields            []FieldDef `yaml:"fields"`
}

func (d ModelDef) ID() descriptor.ModelID {
	return descriptor.ModelID{App: d.App, Model: d.Model}
}

type FieldDef struct {
	Name       string              `yaml:"name"`
	Kind       descriptor.Kind     `yaml:"kind"`
	Required   bool                `yaml:"required"`
	Nullable   bool                `yaml:"nullable"`
	MaxLength  int                 `yaml:"max_length"`
	Column     string              `yaml:"column"`
	Meta       map[string]any      `yaml:"meta"`
	Choices    []descriptor.Choice `yaml:"choices"`
	Default    any                 `yaml:"default"`
	DefaultNow bool                `yaml:"default_now"`
	Auto       bool                `yaml:"auto"`
	Relation   *RelationDef        `yaml:"relation"`
}

type RelationDef struct {
	Kind   string `yaml:"kind"`
	Target string `yaml:"target"`
}

type AdminDef struct {
	Model    string `yaml:"model"`
	Settings bool   `yaml:"settings"`

	Fields         schema.Layout             `yaml:"fields"`
	Exclude        []string                  `yaml:"exclude"`
	Fieldsets      []schema.Fieldset         `yaml:"fieldsets"`
	ReadOnly       []string                  `yaml:"read_only"`
	ReadOnlyOnEdit []string                  `yaml:"read_only_on_edit"`
	Widgets        map[string]string         `yaml:"widgets"`
	WidgetConfig   map[string]map[string]any `yaml:"widget_config"`

	ListFilter   []string `yaml:"list_filter"`
	SearchFields []string `yaml:"search_fields"`
	Ordering     []string `yaml:"ordering"`
	DefaultOrder []string `yaml:"default_order"`
	ListPerPage  int      `yaml:"list_per_page"`

	NoDeleteSelected    bool        `yaml:"no_delete_selected"`
	BatchSize           int         `yaml:"batch_size"`
	BackgroundThreshold int         `yaml:"background_threshold"`
	IntegrityMessage    string      `yaml:"integrity_message"`
	Actions             []ActionDef `yaml:"actions"`
}

// ActionDef declares an update action: every row in scope gets the Set
// values. A string value "$name" is replaced by the action parameter name.
type ActionDef struct {
	action.Spec `yaml:",inline"`
	Set         map[string]any `yaml:"set"`
}

// LoadSite reads a site definition from path.
func LoadSite(path string) (*SiteFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSite(b)
}

// ParseSite decodes a YAML site definition.
func ParseSite(b []byte) (*SiteFile, error) {
	var f SiteFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse site: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, adminerr.Configf("", "", "site declares no models")
	}
	return &f, nil
}

// Source builds the model descriptors.
func (f *SiteFile) Source() (*descriptor.StaticSource, error) {
	models := make([]*descriptor.Model, 0, len(f.Models))
	for _, md := range f.Models {
		m, err := md.build()
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	src, err := descriptor.NewStaticSource(models...)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		for _, fd := range m.Fields() {
			if fd.Relation == nil {
				continue
			}
			if _, err := src.ModelDescriptor(fd.Relation.Target); err != nil {
				return nil, adminerr.Configf(m.ID().String(), fd.Name, "relation target %s is not declared", fd.Relation.Target)
			}
		}
	}
	return src, nil
}

// ModelIDs returns the declared models in file order.
func (f *SiteFile) ModelIDs() []descriptor.ModelID {
	out := make([]descriptor.ModelID, len(f.Models))
	for i, md := range f.Models {
		out[i] = md.ID()
	}
	return out
}

func (d ModelDef) build() (*descriptor.Model, error) {
	id := d.ID()
	pk := d.PK
	if pk == "" {
		pk = "id"
	}
	fields := make([]descriptor.Field, 0, len(d.Fields))
	for _, fd := range d.Fields {
		f, err := fd.build(id)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return descriptor.NewModel(id, pk, descriptor.ModelOptions{
		Table:             d.Table,
		VerboseName:       d.VerboseName,
		VerboseNamePlural: d.VerboseNamePlural,
	}, fields...)
}

func (d FieldDef) build(id descriptor.ModelID) (descriptor.Field, error) {
	f := descriptor.Field{
		Name:          d.Name,
		Kind:          d.Kind,
		Required:      d.Required,
		Nullable:      d.Nullable,
		MaxLength:     d.MaxLength,
		Column:        d.Column,
		Meta:          d.Meta,
		AutoPopulated: d.Auto,
	}
	if d.Relation != nil {
		kind, err := descriptor.ParseRelationKind(d.Relation.Kind)
		if err != nil {
			return f, adminerr.Configf(id.String(), d.Name, "%v", err)
		}
		target, err := descriptor.ParseModelID(d.Relation.Target)
		if err != nil {
			return f, adminerr.Configf(id.String(), d.Name, "%v", err)
		}
		f.Relation = &descriptor.Relation{Kind: kind, Target: target}
	}
	for _, c := range d.Choices {
		v, err := d.Kind.Coerce(c.Value)
		if err != nil {
			return f, adminerr.Configf(id.String(), d.Name, "choice %v: %v", c.Value, err)
		}
		f.Choices = append(f.Choices, descriptor.Choice{Value: v, Label: c.Label})
	}
	if raw, ok := d.Default.(string); ok && d.Kind.IsTemporal() {
		// CURRENT_TIMESTAMP and friends mean the same as default_now.
		if part, ok := util.SQLNow(raw); ok {
			if d.DefaultNow {
				return f, adminerr.Configf(id.String(), d.Name, "default and default_now are exclusive")
			}
			if !part.Fits(d.Kind != descriptor.KindTime, d.Kind != descriptor.KindDate) {
				return f, adminerr.Configf(id.String(), d.Name, "default %s yields a %s, not a %s", raw, part, d.Kind)
			}
			d.Default, d.DefaultNow = nil, true
		}
	}
	switch {
	case d.DefaultNow && d.Default != nil:
		return f, adminerr.Configf(id.String(), d.Name, "default and default_now are exclusive")
	case d.DefaultNow:
		if !d.Kind.IsTemporal() {
			return f, adminerr.Configf(id.String(), d.Name, "default_now needs a temporal kind")
		}
		f.Default = descriptor.ProducerDefault(func() any { return time.Now().UTC() })
	case d.Default != nil:
		v, err := d.Kind.Coerce(d.Default)
		if err != nil {
			return f, adminerr.Configf(id.String(), d.Name, "default: %v", err)
		}
		f.Default = descriptor.StaticDefault(v)
	}
	return f, nil
}

// ModelAdmins converts the admin section. src resolves the models that
// declarative actions update.
func (f *SiteFile) ModelAdmins(src descriptor.Source) ([]admin.ModelAdmin, error) {
	out := make([]admin.ModelAdmin, 0, len(f.Admins))
	for _, ad := range f.Admins {
		id, err := descriptor.ParseModelID(ad.Model)
		if err != nil {
			return nil, adminerr.Configf("", ad.Model, "%v", err)
		}
		m, err := src.ModelDescriptor(id)
		if err != nil {
			return nil, err
		}
		def := admin.ModelAdmin{
			Model:               id,
			Settings:            ad.Settings,
			Fields:              ad.Fields,
			Exclude:             ad.Exclude,
			Fieldsets:           ad.Fieldsets,
			ReadOnly:            ad.ReadOnly,
			ReadOnlyOnEdit:      ad.ReadOnlyOnEdit,
			WidgetConfig:        ad.WidgetConfig,
			ListFilter:          ad.ListFilter,
			SearchFields:        ad.SearchFields,
			Ordering:            ad.Ordering,
			DefaultOrder:        ad.DefaultOrder,
			ListPerPage:         ad.ListPerPage,
			NoDeleteSelected:    ad.NoDeleteSelected,
			BatchSize:           ad.BatchSize,
			BackgroundThreshold: ad.BackgroundThreshold,
		}
		if len(ad.Widgets) > 0 {
			def.Widgets = make(map[string]widgets.Source, len(ad.Widgets))
			for field, key := range ad.Widgets {
				def.Widgets[field] = widgets.FromKey(key)
			}
		}
		if msg := ad.IntegrityMessage; msg != "" {
			def.IntegrityMessage = func(error) string { return msg }
		}
		for _, a := range ad.Actions {
			act, err := a.build(m)
			if err != nil {
				return nil, err
			}
			def.Actions = append(def.Actions, act)
		}
		out = append(out, def)
	}
	return out, nil
}

func (d ActionDef) build(m *descriptor.Model) (action.Action, error) {
	spec := d.Spec
	if len(spec.Scopes) == 0 {
		spec.Scopes = []action.ScopeKind{action.ScopeIDs, action.ScopeQuery}
	}
	if spec.RequiredPerm == "" {
		spec.RequiredPerm = admin.ChangePerm(m.ID())
	}
	if spec.Label == "" {
		spec.Label = descriptor.Humanize(spec.Name)
	}
	if len(d.Set) == 0 {
		return action.Action{}, adminerr.Configf(m.ID().String(), spec.Name, "action sets no fields")
	}
	for name, v := range d.Set {
		f, ok := m.Field(name)
		if !ok || !f.HasColumn() || name == m.PKAttr() {
			return action.Action{}, adminerr.Configf(m.ID().String(), spec.Name, "cannot set field %q", name)
		}
		if p, ok := param(v); ok {
			if _, declared := spec.Params[p]; !declared {
				return action.Action{}, adminerr.Configf(m.ID().String(), spec.Name, "field %s refers to undeclared parameter %q", name, p)
			}
			continue
		}
		if _, err := f.Kind.Coerce(v); err != nil {
			return action.Action{}, adminerr.Configf(m.ID().String(), spec.Name, "field %s: %v", name, err)
		}
	}
	set := d.Set
	return action.Action{Spec: spec, Handler: func(ctx context.Context, rc *action.RunContext, row store.Row) error {
		values := make(store.Row, len(set))
		changed := false
		for name, v := range set {
			if p, ok := param(v); ok {
				v = rc.Params[p]
			}
			f, _ := rc.Model.Field(name)
			cv, err := f.Kind.Coerce(v)
			if err != nil {
				return adminerr.Invalidf(name, "set", "%v", err)
			}
			values[name] = cv
			if fmt.Sprint(row[name]) != fmt.Sprint(cv) {
				changed = true
			}
		}
		if !changed {
			return action.ErrSkip
		}
		return rc.Store.Save(ctx, rc.Model.ID(), row[rc.Model.PKAttr()], values)
	}}, nil
}

func param(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") || len(s) < 2 {
		return "", false
	}
	return s[1:], true
}

// Apply registers every admin of f on site.
func (f *SiteFile) Apply(site *admin.Site, src descriptor.Source) error {
	defs, err := f.ModelAdmins(src)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := site.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Tables lists the storage tables of the declared models, sorted.
func (f *SiteFile) Tables(src descriptor.Source) ([]string, error) {
	var out []string
	for _, id := range f.ModelIDs() {
		m, err := src.ModelDescriptor(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m.Table())
	}
	slices.Sort(out)
	return out, nil
}
