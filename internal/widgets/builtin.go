package widgets

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

// Built-in registry keys.
const (
	KeyTextInput      = "text-input"
	KeyTextarea       = "textarea"
	KeyNumberInput    = "number-input"
	KeyCheckbox       = "checkbox"
	KeyDateTimeInput  = "datetime-input"
	KeyRadio          = "radio"
	KeySelect         = "select"
	KeyRelationSelect = "relation-select"
	KeyRelationMulti  = "relation-multi"
	KeyHidden         = "hidden"
)

type base struct {
	key string
	b   Binding
}

func (w *base) Key() string { return w.key }

func (w *base) Prefetch(context.Context) error { return nil }

func (w *base) Assets() Assets { return Assets{} }

func (w *base) fragment(typ string) Fragment {
	f := Fragment{
		"type":   typ,
		"title":  w.b.Label(),
		"widget": w.key,
	}
	if w.b.ReadOnly {
		f["readOnly"] = true
	}
	if h := w.b.Field.MetaString("help"); h != "" {
		f["description"] = h
	}
	if p := w.b.Field.MetaString("placeholder"); p != "" {
		f["placeholder"] = p
	}
	if w.b.Field.Nullable {
		f["nullable"] = true
	}
	if len(w.b.Config) > 0 {
		f["options"] = maps.Clone(w.b.Config)
	}
	return f
}

// StartValue returns the instance value in edit mode, else a configured
// "initial" value.
func (w *base) StartValue() (any, bool) {
	if w.b.Instance != nil {
		if v, ok := w.b.Instance[w.b.Field.Name]; ok {
			return w.b.Field.Kind.Format(v), true
		}
	}
	if v, ok := w.b.Config["initial"]; ok {
		return v, true
	}
	return nil, false
}

func (w *base) ToDomain(v any) (any, error) {
	out, err := w.b.Field.Kind.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.b.Field.Name, err)
	}
	return out, nil
}

func (w *base) ToStorage(v any) (any, error) { return w.ToDomain(v) }

type textInput struct {
	base
	multiline bool
}

func (w *textInput) Schema() Fragment {
	f := w.fragment("string")
	if w.b.Field.MaxLength > 0 {
		f["maxLength"] = w.b.Field.MaxLength
	}
	if w.multiline {
		rows := 4
		if n, ok := w.b.Config["rows"].(int); ok && n > 0 {
			rows = n
		}
		f["rows"] = rows
	}
	return f
}

func (w *textInput) ToDomain(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := descriptor.KindString.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.b.Field.Name, err)
	}
	if limit := w.b.Field.MaxLength; limit > 0 && utf8.RuneCountInString(s.(string)) > limit {
		return nil, fmt.Errorf("%s: longer than %d characters", w.b.Field.Name, limit)
	}
	return s, nil
}

func (w *textInput) ToStorage(v any) (any, error) { return w.ToDomain(v) }

type hidden struct{ base }

func (w *hidden) Schema() Fragment {
	f := w.fragment(jsonType(w.b.Field.Kind))
	f["hidden"] = true
	return f
}

type numberInput struct{ base }

func (w *numberInput) Schema() Fragment {
	f := w.fragment(jsonType(w.b.Field.Kind))
	for _, k := range []string{"minimum", "maximum", "step"} {
		if v, ok := w.b.Field.Meta[k]; ok {
			f[k] = v
		}
	}
	return f
}

type checkbox struct{ base }

func (w *checkbox) Schema() Fragment { return w.fragment("boolean") }

type dateTimeInput struct{ base }

func (w *dateTimeInput) Schema() Fragment {
	f := w.fragment("string")
	switch w.b.Field.Kind {
	case descriptor.KindDate:
		f["format"] = "date"
	case descriptor.KindTime:
		f["format"] = "time"
	default:
		f["format"] = "date-time"
	}
	return f
}

func (w *dateTimeInput) Assets() Assets {
	return Assets{CSS: []string{"admin/css/datetime.css"}, JS: []string{"admin/js/datetime.js"}}
}

type choice struct {
	base
	style string
}

func (w *choice) Schema() Fragment {
	f := w.fragment(jsonType(w.b.Field.Kind))
	enum := make([]any, 0, len(w.b.Field.Choices))
	for _, c := range w.b.Field.Choices {
		enum = append(enum, c.Value)
	}
	f["enum"] = enum
	f["choices"] = w.b.Field.Choices
	f["style"] = w.style
	return f
}

// ToDomain accepts a declared choice value, matched on its textual form.
func (w *choice) ToDomain(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	want := fmt.Sprint(v)
	for _, c := range w.b.Field.Choices {
		if fmt.Sprint(c.Value) == want {
			return c.Value, nil
		}
	}
	return nil, fmt.Errorf("%s: %v is not a declared choice", w.b.Field.Name, v)
}

func (w *choice) ToStorage(v any) (any, error) { return w.ToDomain(v) }

type relationSelect struct {
	base
	multi bool
}

func (w *relationSelect) pkKind() descriptor.Kind {
	if w.b.Target != nil {
		return w.b.Target.PKField().Kind
	}
	return w.b.Field.Kind
}

// Prefetch resolves the target's rows into the request choice table.
func (w *relationSelect) Prefetch(ctx context.Context) error {
	if w.b.Loader == nil || w.b.Choices == nil || w.b.Target == nil {
		return nil
	}
	if _, done := w.b.Choices.Get(w.b.Field.Name); done {
		return nil
	}
	label := w.b.Field.MetaString("label_field")
	if l, ok := w.b.Config["label_field"].(string); ok && l != "" {
		label = l
	}
	choices, err := w.b.Loader.LoadChoices(ctx, w.b.Target, label)
	if err != nil {
		return fmt.Errorf("prefetch %s choices: %w", w.b.Field.Name, err)
	}
	w.b.Choices.Set(w.b.Field.Name, choices)
	return nil
}

func (w *relationSelect) Schema() Fragment {
	typ := jsonType(w.pkKind())
	if w.multi {
		typ = "array"
	}
	f := w.fragment(typ)
	if w.multi {
		f["items"] = map[string]any{"type": jsonType(w.pkKind())}
	}
	if w.b.Target != nil {
		f["relation"] = w.b.Target.ID().String()
	}
	if w.b.Choices != nil {
		if c, ok := w.b.Choices.Get(w.b.Field.Name); ok {
			f["choices"] = c
		}
	}
	return f
}

func (w *relationSelect) StartValue() (any, bool) {
	v, ok := w.base.StartValue()
	if ok && w.multi && v == nil {
		return []any{}, true
	}
	return v, ok
}

func (w *relationSelect) ToDomain(v any) (any, error) {
	if !w.multi {
		if v == nil {
			return nil, nil
		}
		out, err := w.pkKind().Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.b.Field.Name, err)
		}
		return out, nil
	}
	var items []any
	switch x := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		items = x
	case string:
		for _, p := range strings.Split(x, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
	default:
		return nil, fmt.Errorf("%s: expected a list of ids, got %T", w.b.Field.Name, v)
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		id, err := w.pkKind().Coerce(it)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.b.Field.Name, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (w *relationSelect) ToStorage(v any) (any, error) { return w.ToDomain(v) }

func (w *relationSelect) Assets() Assets {
	return Assets{JS: []string{"admin/js/relation.js"}}
}

func jsonType(k descriptor.Kind) string {
	switch k {
	case descriptor.KindInteger:
		return "integer"
	case descriptor.KindNumber:
		return "number"
	case descriptor.KindBoolean:
		return "boolean"
	}
	return "string"
}

type builtin struct {
	def     Definition
	factory Factory
}

func builtins() []builtin {
	mk := func(key, name, desc string, fn func(base) Widget) builtin {
		return builtin{
			def: Definition{ID: key, Name: name, Description: desc},
			factory: func(b Binding) (Widget, error) {
				return fn(base{key: key, b: b}), nil
			},
		}
	}
	return []builtin{
		mk(KeyTextInput, "Text input", "single-line text", func(b base) Widget { return &textInput{base: b} }),
		mk(KeyTextarea, "Textarea", "multi-line text", func(b base) Widget { return &textInput{base: b, multiline: true} }),
		mk(KeyNumberInput, "Number input", "integer or decimal", func(b base) Widget { return &numberInput{base: b} }),
		mk(KeyCheckbox, "Checkbox", "boolean toggle", func(b base) Widget { return &checkbox{base: b} }),
		mk(KeyDateTimeInput, "Date/time input", "date, datetime or time", func(b base) Widget { return &dateTimeInput{base: b} }),
		mk(KeyRadio, "Radio", "one of the declared choices", func(b base) Widget { return &choice{base: b, style: "radio"} }),
		mk(KeySelect, "Select", "dropdown of the declared choices", func(b base) Widget { return &choice{base: b, style: "select"} }),
		mk(KeyRelationSelect, "Relation select", "single related row", func(b base) Widget { return &relationSelect{base: b} }),
		mk(KeyRelationMulti, "Relation multi-select", "many related rows", func(b base) Widget { return &relationSelect{base: b, multi: true} }),
		mk(KeyHidden, "Hidden", "not rendered", func(b base) Widget { return &hidden{base: b} }),
	}
}
