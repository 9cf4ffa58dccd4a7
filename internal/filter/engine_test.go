package filter

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

var (
	userID = descriptor.ModelID{App: "auth", Model: "user"}
	postID = descriptor.ModelID{App: "blog", Model: "post"}
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	user := descriptor.MustModel(userID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "username", Kind: descriptor.KindString},
	)
	post := descriptor.MustModel(postID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "title", Kind: descriptor.KindString},
		descriptor.Field{Name: "body", Kind: descriptor.KindText},
		descriptor.Field{Name: "views", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "rating", Kind: descriptor.KindNumber},
		descriptor.Field{Name: "active", Kind: descriptor.KindBoolean},
		descriptor.Field{Name: "published", Kind: descriptor.KindDate},
		descriptor.Field{Name: "updated", Kind: descriptor.KindDateTime},
		descriptor.Field{Name: "slot", Kind: descriptor.KindTime},
		descriptor.Field{Name: "status", Kind: descriptor.KindString, Choices: []descriptor.Choice{{Value: "draft", Label: "Draft"}, {Value: "live", Label: "Live"}}},
		descriptor.Field{Name: "author", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationFK, Target: userID}},
		descriptor.Field{Name: "editors", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationM2M, Target: userID}},
		descriptor.Field{Name: "cover", Kind: descriptor.KindBinary},
	)
	src, err := descriptor.NewStaticSource(user, post)
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(src, post, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestStrictRejectsIllegalOperators(t *testing.T) {
	e := newEngine(t, Config{})
	sample := map[string]string{
		"title": "x", "body": "x", "views": "1", "rating": "1.5", "active": "true",
		"published": "2024-01-01", "updated": "2024-01-01T00:00:00", "slot": "10:00",
		"status": "draft", "author": "1",
	}
	for path, v := range sample {
		tg := e.byPath[path]
		for _, op := range store.Operators {
			_, err := e.Validate(Scope{Filters: map[string]any{path + "." + string(op): v}})
			legal := tg.class.Allows(op)
			if legal && err != nil {
				t.Fatalf("%s.%s should be accepted: %v", path, op, err)
			}
			if !legal {
				var ve *adminerr.ValidationError
				if !errors.As(err, &ve) || ve.Field != path || ve.Operator != string(op) {
					t.Fatalf("%s.%s should be rejected naming field and operator, got %v", path, op, err)
				}
			}
		}
	}
}

func TestBooleanGteRejected(t *testing.T) {
	e := newEngine(t, Config{})
	_, err := e.Validate(Scope{Filters: map[string]any{"active.gte": "1"}})
	if !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStrictRejectsUndeclaredAndUnparsable(t *testing.T) {
	e := newEngine(t, Config{Filters: []string{"title", "views"}})
	cases := []map[string]any{
		{"active": true},
		{"views": "many"},
		{"views.in": "1,x"},
		{"editors": "1"},
		{"title.nope": "x"},
	}
	for _, f := range cases {
		if _, err := e.Validate(Scope{Filters: f}); !errors.Is(err, adminerr.ErrValidation) {
			t.Fatalf("%v: expected validation error, got %v", f, err)
		}
	}
}

func TestStrictSearchAndOrder(t *testing.T) {
	e := newEngine(t, Config{})
	if _, err := e.Validate(Scope{Search: "hi"}); !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("search without search fields must fail, got %v", err)
	}
	if _, err := e.Validate(Scope{Order: []string{"-editors"}}); !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("m2m order must fail, got %v", err)
	}
	if _, err := e.Validate(Scope{Order: []string{"-views", "title"}}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	e = newEngine(t, Config{Search: []string{"title", "author.username"}, Ordering: []string{"title"}})
	if _, err := e.Validate(Scope{Search: "hi", Order: []string{"title"}}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if _, err := e.Validate(Scope{Order: []string{"views"}}); !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("order outside allow-list must fail, got %v", err)
	}
}

func TestStrictCoercesJSONValues(t *testing.T) {
	e := newEngine(t, Config{})
	specs, err := e.Validate(Scope{Filters: map[string]any{
		"views.gte": float64(3),
		"active":    false,
		"author.in": []any{float64(1), "2"},
		"rating":    nil,
	}})
	if err != nil {
		t.Fatal(err)
	}
	want := []store.FilterSpec{
		{Path: "active", Op: store.OpEq, Value: false},
		{Path: "author", Op: store.OpIn, Value: []any{int64(1), int64(2)}},
		{Path: "rating", Op: store.OpIsNull},
		{Path: "views", Op: store.OpGTE, Value: int64(3)},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Fatalf("specs mismatch (-want +got):\n%s", diff)
	}

	var sc Scope
	if err := json.Unmarshal([]byte(`{"filters":{"views.lt":1000000,"author.in":[12345678,3]}}`), &sc); err != nil {
		t.Fatal(err)
	}
	specs, err = e.Validate(sc)
	if err != nil {
		t.Fatalf("large JSON numbers: %v", err)
	}
	want = []store.FilterSpec{
		{Path: "author", Op: store.OpIn, Value: []any{int64(12345678), int64(3)}},
		{Path: "views", Op: store.OpLT, Value: int64(1000000)},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Fatalf("specs mismatch (-want +got):\n%s", diff)
	}
	if _, err := e.Validate(Scope{Filters: map[string]any{"views": json.Number("42"), "rating.gte": float64(2.5)}}); err != nil {
		t.Fatalf("json.Number and fractional values: %v", err)
	}
	if _, err := e.Validate(Scope{Filters: map[string]any{"views": float64(1.5)}}); err == nil {
		t.Fatalf("expected a fractional integer to be rejected")
	}
}

func TestParseListFiltersLenient(t *testing.T) {
	e := newEngine(t, Config{Filters: []string{"title", "views", "active", "published", "status", "author.username"}})
	v := url.Values{}
	v.Set("f_title.icontains", "go")
	v.Set("f_views.in", "1, 2,,3")
	v.Set("f_active", "maybe")
	v.Set("f_published.eq", "2024-01-01")
	v.Set("f_published.gte", "2024-01-01")
	v.Set("f_status", "archived")
	v.Set("f_author.username", "null")
	v.Set("f_unknown", "1")
	v.Set("page", "2")

	got := e.ParseListFilters(v, "f_")
	want := []store.FilterSpec{
		{Path: "author.username", Op: store.OpIsNull},
		{Path: "published", Op: store.OpGTE, Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Path: "title", Op: store.OpIContains, Value: "go"},
		{Path: "views", Op: store.OpIn, Value: []any{int64(1), int64(2), int64(3)}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("specs mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile(t *testing.T) {
	e := newEngine(t, Config{Search: []string{"title"}, DefaultOrder: []string{"-id"}})
	q, err := e.Compile(Scope{Filters: map[string]any{"status.in": "draft,live"}, Search: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Filters) != 1 || q.Search == nil || q.Search.Term != "go" || len(q.Orders) != 1 || !q.Orders[0].Desc {
		t.Fatalf("unexpected query: %+v", q)
	}

	q, err = e.Compile(Scope{IDs: []any{"1", float64(2)}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{int64(1), int64(2)}, q.Filters[0].Value); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if _, err := e.Compile(Scope{IDs: []any{"abc"}}); !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("expected validation error for bad id, got %v", err)
	}
	if _, err := e.Compile(Scope{IDs: []any{1}, Search: "x"}); !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("mixed scope must fail, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	e := newEngine(t, Config{Filters: []string{"status", "author.username", "published"}})
	d := e.Describe()
	if len(d) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(d))
	}
	if d[0].Class != "choice" || len(d[0].Choices) != 2 {
		t.Fatalf("unexpected status descriptor %+v", d[0])
	}
	if d[1].Label != "Author username" {
		t.Fatalf("unexpected label %q", d[1].Label)
	}
	if diff := cmp.Diff([]store.Op{store.OpGTE, store.OpLTE, store.OpGT, store.OpLT}, d[2].Operators); diff != "" {
		t.Fatalf("temporal operators mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEngineConfigErrors(t *testing.T) {
	user := descriptor.MustModel(userID, "id", descriptor.ModelOptions{}, descriptor.Field{Name: "id", Kind: descriptor.KindInteger})
	post := descriptor.MustModel(postID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "tags", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationM2M, Target: userID}},
	)
	src, _ := descriptor.NewStaticSource(user, post)
	for _, cfg := range []Config{
		{Filters: []string{"nope"}},
		{Filters: []string{"tags"}},
		{Filters: []string{"tags.id"}},
		{Search: []string{"id"}},
		{Ordering: []string{"tags"}},
	} {
		if _, err := NewEngine(src, post, cfg); !errors.Is(err, adminerr.ErrConfiguration) {
			t.Fatalf("%+v: expected configuration error, got %v", cfg, err)
		}
	}
}
