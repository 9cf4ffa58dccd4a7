// Package widgets holds the widget registry and the built-in widgets that
// turn one bound field into a schema fragment plus value codecs.
package widgets

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// Mode is the form mode a widget is bound for.
type Mode string

const (
	ModeAdd  Mode = "add"
	ModeEdit Mode = "edit"
)

// ParseMode accepts "add" and "edit"; the empty string means add.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeAdd:
		return ModeAdd, nil
	case ModeEdit:
		return ModeEdit, nil
	}
	return "", fmt.Errorf("unknown form mode %q", s)
}

// Fragment is the JSON-schema-like description of one field.
type Fragment map[string]any

// Assets lists static files a widget needs on the client.
type Assets struct {
	CSS []string `json:"css,omitempty"`
	JS  []string `json:"js,omitempty"`
}

// Merge appends b to a, dropping duplicates and keeping first-seen order.
func (a Assets) Merge(b Assets) Assets {
	out := Assets{CSS: slices.Clone(a.CSS), JS: slices.Clone(a.JS)}
	for _, c := range b.CSS {
		if !slices.Contains(out.CSS, c) {
			out.CSS = append(out.CSS, c)
		}
	}
	for _, j := range b.JS {
		if !slices.Contains(out.JS, j) {
			out.JS = append(out.JS, j)
		}
	}
	return out
}

// ChoiceLoader resolves the selectable rows of a relation target.
type ChoiceLoader interface {
	LoadChoices(ctx context.Context, target *descriptor.Model, labelField string) ([]descriptor.Choice, error)
}

// ChoiceTable is the per-request side table that prefetching widgets fill
// with resolved choices, keyed by field name.
type ChoiceTable struct {
	mu sync.Mutex
	m  map[string][]descriptor.Choice
}

func NewChoiceTable() *ChoiceTable {
	return &ChoiceTable{m: make(map[string][]descriptor.Choice)}
}

func (t *ChoiceTable) Set(field string, choices []descriptor.Choice) {
	t.mu.Lock()
	t.m[field] = slices.Clone(choices)
	t.mu.Unlock()
}

func (t *ChoiceTable) Get(field string) ([]descriptor.Choice, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.m[field]
	return slices.Clone(c), ok
}

// Binding is the context one widget instance is bound to.
type Binding struct {
	Model    descriptor.ModelID
	Field    descriptor.Field
	Target   *descriptor.Model // relation target, nil for plain fields
	Mode     Mode
	Instance store.Row // nil in add mode
	ReadOnly bool
	Config   map[string]any
	Choices  *ChoiceTable
	Loader   ChoiceLoader
}

// Label returns the field label.
func (b Binding) Label() string { return b.Field.Label() }

// Widget is a strategy bound to one field occurrence.
type Widget interface {
	Key() string
	// Prefetch runs once before Schema and StartValue are read.
	Prefetch(ctx context.Context) error
	Schema() Fragment
	StartValue() (any, bool)
	ToDomain(v any) (any, error)
	ToStorage(v any) (any, error)
	Assets() Assets
}

// Factory binds a fresh widget.
type Factory func(b Binding) (Widget, error)
