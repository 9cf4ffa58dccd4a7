package widgets

import (
	"context"
	"errors"
	"testing"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

var postID = descriptor.ModelID{App: "blog", Model: "post"}

func TestHasBuiltin(t *testing.T) {
	r := NewRegistry()
	for _, k := range []string{KeyTextInput, KeyTextarea, KeyNumberInput, KeyCheckbox, KeyDateTimeInput, KeyRadio, KeySelect, KeyRelationSelect, KeyRelationMulti, KeyHidden} {
		if !r.Has(k) {
			t.Fatalf("expected builtin widget %s to be known", k)
		}
	}
}

func TestRegisterAfterFreeze(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	err := r.Register(Definition{ID: "color"}, func(b Binding) (Widget, error) { return nil, nil })
	if !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Definition{ID: KeyTextInput}, func(b Binding) (Widget, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestListFilters(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAlias(Alias{ID: "email", Name: "Email", Base: KeyTextInput, Config: map[string]any{"format": "email"}}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	items, total, etag, _, _ := r.List(ctx, Options{})
	if total != 11 || len(items) != 11 {
		t.Fatalf("expected 11 items, got %d (%d)", len(items), total)
	}
	if etag == "" {
		t.Fatalf("expected etag")
	}

	items, total, _, _, _ = r.List(ctx, Options{Base: KeyTextInput})
	if total != 2 || items[0].ID != "email" || items[1].ID != KeyTextInput {
		t.Fatalf("base filter failed: %+v", items)
	}

	items, total, _, _, _ = r.List(ctx, Options{Q: "relation"})
	if total != 2 {
		t.Fatalf("query filter failed: %+v", items)
	}

	items, total, _, _, _ = r.List(ctx, Options{Limit: 3, Offset: 9})
	if total != 11 || len(items) != 2 {
		t.Fatalf("paging failed: %d of %d", len(items), total)
	}
}

func TestEtagChangesOnRegister(t *testing.T) {
	r := NewRegistry()
	_, _, before, _, _ := r.List(context.Background(), Options{})
	if err := r.RegisterAlias(Alias{ID: "slug", Base: KeyTextInput}); err != nil {
		t.Fatal(err)
	}
	_, _, after, _, _ := r.List(context.Background(), Options{})
	if before == after {
		t.Fatalf("etag should change after registration")
	}
}

func TestAliasConfigMerge(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAlias(Alias{ID: "notes", Base: KeyTextarea, Config: map[string]any{"rows": 8, "mono": true}}); err != nil {
		t.Fatal(err)
	}
	f, _ := r.Lookup("notes")
	w, err := f(Binding{Model: postID, Field: descriptor.Field{Name: "body", Kind: descriptor.KindText}, Config: map[string]any{"mono": false}})
	if err != nil {
		t.Fatal(err)
	}
	s := w.Schema()
	if s["rows"] != 8 {
		t.Fatalf("alias config not applied: %v", s)
	}
	if opts := s["options"].(map[string]any); opts["mono"] != false {
		t.Fatalf("binding config should override alias config: %v", opts)
	}
	if err := r.RegisterAlias(Alias{ID: "broken", Base: "nope"}); err == nil {
		t.Fatalf("alias with unknown base must fail")
	}
}

func TestDefaultKey(t *testing.T) {
	target := descriptor.ModelID{App: "auth", Model: "user"}
	cases := []struct {
		f    descriptor.Field
		want string
	}{
		{descriptor.Field{Kind: descriptor.KindBoolean, Choices: []descriptor.Choice{{Value: true}}}, KeyCheckbox},
		{descriptor.Field{Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationFK, Target: target}}, KeyRelationSelect},
		{descriptor.Field{Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationM2M, Target: target}}, KeyRelationMulti},
		{descriptor.Field{Kind: descriptor.KindString, Choices: []descriptor.Choice{{Value: "a"}}}, KeyRadio},
		{descriptor.Field{Kind: descriptor.KindNumber}, KeyNumberInput},
		{descriptor.Field{Kind: descriptor.KindTime}, KeyDateTimeInput},
		{descriptor.Field{Kind: descriptor.KindText}, KeyTextarea},
		{descriptor.Field{Kind: descriptor.KindBinary}, KeyTextInput},
	}
	for _, c := range cases {
		if got := DefaultKey(c.f); got != c.want {
			t.Fatalf("DefaultKey(%v) = %s, want %s", c.f.Kind, got, c.want)
		}
	}
}

type colorPicker struct {
	base
	palette []string
}

func (w *colorPicker) Schema() Fragment {
	f := w.fragment("string")
	f["palette"] = w.palette
	return f
}

func (w *colorPicker) Bind(b Binding) (Widget, error) {
	return &colorPicker{base: base{key: "color", b: b}, palette: w.palette}, nil
}

func TestResolveOrder(t *testing.T) {
	r := NewRegistry()
	f := descriptor.Field{Name: "title", Kind: descriptor.KindString, Meta: map[string]any{"widget": KeyTextarea}}

	res, err := r.Resolve(postID, f, Source{})
	if err != nil || res.Key != KeyTextarea {
		t.Fatalf("meta widget should win over kind default: %v %v", res.Key, err)
	}
	res, err = r.Resolve(postID, f, FromKey(KeyHidden))
	if err != nil || res.Key != KeyHidden {
		t.Fatalf("override should win over meta: %v %v", res.Key, err)
	}
	res, err = r.Resolve(postID, f, FromInstance(&colorPicker{palette: []string{"red"}}))
	if err != nil {
		t.Fatal(err)
	}
	w, _ := res.Factory(Binding{Field: f})
	if w.Schema()["palette"].([]string)[0] != "red" {
		t.Fatalf("instance override not bound")
	}
}

func TestResolveUnknownKey(t *testing.T) {
	r := NewRegistry()
	f := descriptor.Field{Name: "title", Kind: descriptor.KindString, Meta: map[string]any{"widget": "wysiwyg"}}
	_, err := r.Resolve(postID, f, Source{})
	if !errors.Is(err, adminerr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := r.Resolve(postID, descriptor.Field{Name: "x", Kind: descriptor.KindString}, FromKey("nope")); !errors.Is(err, adminerr.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown override, got %v", err)
	}
}
