// Package admin binds model admins to a site: the boundary surface that
// builds form schemas, describes list filters and runs bulk actions.
package admin

import (
	"slices"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/internal/schema"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

// ModelAdmin is the admin definition of one model.
type ModelAdmin struct {
	Model descriptor.ModelID
	// Settings marks a singleton settings admin; a model may be registered
	// once as a regular admin and once as a settings admin.
	Settings bool

	Fields         schema.Layout
	Exclude        []string
	Fieldsets      []schema.Fieldset
	ReadOnly       []string
	ReadOnlyOnEdit []string
	Widgets        map[string]widgets.Source
	WidgetConfig   map[string]map[string]any

	ListFilter   []string
	SearchFields []string
	Ordering     []string
	DefaultOrder []string
	ListPerPage  int

	Actions             []action.Action
	NoDeleteSelected    bool
	BatchSize           int
	BackgroundThreshold int
	// IntegrityMessage maps a store integrity violation to the message
	// shown to the user.
	IntegrityMessage func(err error) string
}

func (a ModelAdmin) schemaOptions() schema.Options {
	return schema.Options{
		Fields:         a.Fields,
		Exclude:        a.Exclude,
		Fieldsets:      a.Fieldsets,
		ReadOnly:       a.ReadOnly,
		ReadOnlyOnEdit: a.ReadOnlyOnEdit,
		Widgets:        a.Widgets,
		WidgetConfig:   a.WidgetConfig,
	}
}

func (a ModelAdmin) filterConfig() filter.Config {
	return filter.Config{
		Filters:      a.ListFilter,
		Search:       a.SearchFields,
		Ordering:     a.Ordering,
		DefaultOrder: a.DefaultOrder,
	}
}

func (a ModelAdmin) integrity(err error) string {
	if a.IntegrityMessage != nil {
		if msg := a.IntegrityMessage(err); msg != "" {
			return msg
		}
	}
	return adminerr.DefaultIntegrityMessage
}

type key struct {
	model    descriptor.ModelID
	settings bool
}

// entry is a compiled ModelAdmin.
type entry struct {
	def     ModelAdmin
	model   *descriptor.Model
	form    *schema.Form
	filters *filter.Engine
	actions []action.Action
}

func (e *entry) action(name string) (action.Action, bool) {
	i := slices.IndexFunc(e.actions, func(a action.Action) bool { return a.Name == name })
	if i < 0 {
		return action.Action{}, false
	}
	return e.actions[i], true
}

func (e *entry) target() action.Target {
	return action.Target{
		Model:               e.model,
		Filters:             e.filters,
		BatchSize:           e.def.BatchSize,
		BackgroundThreshold: e.def.BackgroundThreshold,
		Integrity:           e.def.integrity,
	}
}

func compileActions(m *descriptor.Model, def ModelAdmin) ([]action.Action, error) {
	var out []action.Action
	if !def.NoDeleteSelected {
		out = append(out, action.DeleteSelected(m))
	}
	for _, a := range def.Actions {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if i := slices.IndexFunc(out, func(x action.Action) bool { return x.Name == a.Name }); i >= 0 {
			if a.Name != action.DeleteSelectedName {
				return nil, adminerr.Configf(m.ID().String(), a.Name, "action declared twice")
			}
			out[i] = a
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
