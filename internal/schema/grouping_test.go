package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

var sets = []Fieldset{
	{Fields: Layout{{"title"}}},
	{Name: "Content", Fields: Layout{{"body"}, {"published", "views"}}},
	{Fields: Layout{{"author", "editors"}}},
}

func TestGroupNormalizeRoundTrip(t *testing.T) {
	g, err := NewGrouping(postID, sets, []string{"title", "body", "published", "views", "author", "editors", "extra"})
	if err != nil {
		t.Fatal(err)
	}
	flat := map[string]any{
		"title":     "Hi",
		"body":      "",
		"published": ZeroDate,
		"views":     int64(3),
		"author":    int64(1),
		"editors":   []any{int64(2)},
		"extra":     "kept",
	}
	grouped := g.Group(flat)
	want := map[string]any{
		"title": "Hi",
		"extra": "kept",
		"__fs1": map[string]any{
			"body":     "",
			"__fs1_r1": map[string]any{"published": ZeroDate, "views": int64(3)},
		},
		"__fs2_r0": map[string]any{"author": int64(1), "editors": []any{int64(2)}},
	}
	if diff := cmp.Diff(want, grouped); diff != "" {
		t.Fatalf("grouped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(flat, g.Normalize(grouped)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupOmitsEmptyContainers(t *testing.T) {
	g, err := NewGrouping(postID, sets, nil)
	if err != nil {
		t.Fatal(err)
	}
	flat := map[string]any{"title": "x"}
	if diff := cmp.Diff(flat, g.Group(flat)); diff != "" {
		t.Fatalf("unexpected containers (-want +got):\n%s", diff)
	}
	if g.Container("views") != "__fs1_r1" || g.Container("title") != "" {
		t.Fatalf("unexpected owners")
	}
}

func TestGroupingCollisions(t *testing.T) {
	_, err := NewGrouping(postID, []Fieldset{{Fields: Layout{{"__fs0"}}}}, nil)
	if !errors.Is(err, adminerr.ErrConfiguration) {
		t.Fatalf("expected collision error, got %v", err)
	}
	_, err = NewGrouping(postID, []Fieldset{{Fields: Layout{{"a"}}}, {Name: "B", Fields: Layout{{"a"}}}}, nil)
	if !errors.Is(err, adminerr.ErrConfiguration) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestGroupedSchema(t *testing.T) {
	b, post := newBuilder(t)
	form, err := b.Compile(post, Options{Fieldsets: []Fieldset{
		{Fields: Layout{{"title"}}},
		{Name: "Meta", Description: "publishing", Fields: Layout{{"published", "views", "created_at"}}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := form.Build(context.Background(), widgets.ModeAdd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"title"}, res.Required); diff != "" {
		t.Fatalf("root required mismatch (-want +got):\n%s", diff)
	}
	meta := res.Schema["properties"].(map[string]any)["__fs1"].(map[string]any)
	if meta["title"] != "Meta" {
		t.Fatalf("fieldset title missing: %v", meta)
	}
	row := meta["properties"].(map[string]any)["__fs1_r0"].(map[string]any)
	if row["columns"] != 4 || row["grid"] != true {
		t.Fatalf("unexpected sub-grid: %v", row)
	}
	if diff := cmp.Diff([]string{"created_at"}, row["required"]); diff != "" {
		t.Fatalf("required should move into the sub-grid (-want +got):\n%s", diff)
	}
	wantStart := map[string]any{
		"__fs1": map[string]any{"__fs1_r0": map[string]any{"published": ZeroDate, "views": int64(0)}},
	}
	if diff := cmp.Diff(wantStart, res.StartValue); diff != "" {
		t.Fatalf("start value mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"published": ZeroDate, "views": int64(0)}, form.Grouping().Normalize(res.StartValue)); diff != "" {
		t.Fatalf("normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestColumnsFloor(t *testing.T) {
	line := make(Line, 13)
	for i := range line {
		line[i] = string(rune('a' + i))
	}
	g, err := NewGrouping(descriptor.ModelID{App: "a", Model: "b"}, []Fieldset{{Fields: Layout{line}}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.containers["__fs0_r0"].columns != 1 {
		t.Fatalf("columns should floor at 1")
	}
}
