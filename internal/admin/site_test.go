package admin

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/audit"
	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/scopetoken"
	"github.com/faciam-dev/gcadmin/internal/store/memstore"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

var (
	authorID = descriptor.ModelID{App: "blog", Model: "author"}
	tagID    = descriptor.ModelID{App: "blog", Model: "tag"}
	postID   = descriptor.ModelID{App: "blog", Model: "post"}
)

func newMemStore(t *testing.T) *memstore.Store {
	t.Helper()
	author := descriptor.MustModel(authorID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "username", Kind: descriptor.KindString, Required: true},
	)
	tag := descriptor.MustModel(tagID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "name", Kind: descriptor.KindString, Required: true},
	)
	post := descriptor.MustModel(postID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "title", Kind: descriptor.KindString, Required: true, Meta: map[string]any{"unique": true}},
		descriptor.Field{Name: "body", Kind: descriptor.KindText},
		descriptor.Field{Name: "published", Kind: descriptor.KindBoolean, Default: descriptor.StaticDefault(false)},
		descriptor.Field{Name: "views", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "author", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationFK, Target: authorID}},
		descriptor.Field{Name: "tags", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationM2M, Target: tagID}},
	)
	src, err := descriptor.NewStaticSource(author, tag, post)
	if err != nil {
		t.Fatal(err)
	}
	s := memstore.New(src)
	ctx := context.Background()
	if err := s.Seed(ctx, authorID, store.Row{"username": "ann"}, store.Row{"username": "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Seed(ctx, tagID, store.Row{"name": "go"}, store.Row{"name": "db"}); err != nil {
		t.Fatal(err)
	}
	err = s.Seed(ctx, postID,
		store.Row{"title": "One", "published": true, "views": int64(10), "author": int64(1)},
		store.Row{"title": "Two", "published": false, "views": int64(3), "author": int64(2)},
		store.Row{"title": "Three", "published": true, "views": int64(7), "author": int64(1)},
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func postAdmin() ModelAdmin {
	return ModelAdmin{
		Model:        postID,
		ListFilter:   []string{"published", "views", "author", "author.username"},
		SearchFields: []string{"title", "body"},
		DefaultOrder: []string{"-views"},
		Actions: []action.Action{{
			Spec: action.Spec{Name: "publish", Label: "Publish", Scopes: []action.ScopeKind{action.ScopeIDs, action.ScopeQuery}},
			Handler: func(ctx context.Context, rc *action.RunContext, row store.Row) error {
				return rc.Store.Save(ctx, rc.Model.ID(), row["id"], store.Row{"published": true})
			},
		}},
		IntegrityMessage: func(error) string { return "a post with this title already exists" },
	}
}

func newSite(t *testing.T, opts Options) *Site {
	t.Helper()
	if opts.Store == nil {
		opts.Store = newMemStore(t)
	}
	if opts.Tokens == nil {
		tok, err := scopetoken.New([]byte("site-secret"))
		if err != nil {
			t.Fatal(err)
		}
		opts.Tokens = tok
	}
	s, err := NewSite(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Register(postAdmin()); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Freeze()
	return s
}

func TestRegisterIdempotentAndFrozen(t *testing.T) {
	s, err := NewSite(Options{Store: newMemStore(t)})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Register(postAdmin()); err != nil {
		t.Fatal(err)
	}
	second := postAdmin()
	second.SearchFields = nil
	if err := s.Register(second); err != nil {
		t.Fatal(err)
	}
	e, _ := s.lookup(postID)
	if len(e.filters.SearchFields()) != 2 {
		t.Fatalf("second registration replaced the first")
	}
	settings := ModelAdmin{Model: authorID, Settings: true}
	if err := s.Register(settings); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(ModelAdmin{Model: postID, Settings: true}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]descriptor.ModelID{postID, authorID}, s.Models()); diff != "" {
		t.Fatalf("models mismatch (-want +got):\n%s", diff)
	}
	if err := s.Register(ModelAdmin{Model: descriptor.ModelID{App: "blog", Model: "missing"}}); !errors.Is(err, adminerr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	s.Freeze()
	if err := s.Register(ModelAdmin{Model: tagID}); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected frozen, got %v", err)
	}
}

func TestRegisterConfigurationErrors(t *testing.T) {
	cases := map[string]ModelAdmin{
		"unknown filter":  {Model: postID, ListFilter: []string{"color"}},
		"unknown layout":  {Model: postID, Exclude: []string{"color"}},
		"unknown widget":  {Model: postID, Widgets: map[string]widgets.Source{"title": widgets.FromKey("rich-text")}},
		"duplicate":       {Model: postID, Actions: []action.Action{postAdmin().Actions[0], postAdmin().Actions[0]}},
		"unsatisfiable":   {Model: postID, ReadOnly: []string{"title"}},
		"action no scope": {Model: postID, Actions: []action.Action{{Spec: action.Spec{Name: "x"}, Handler: postAdmin().Actions[0].Handler}}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := NewSite(Options{Store: newMemStore(t)})
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Register(def); !errors.Is(err, adminerr.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestGetSchemaAndFilters(t *testing.T) {
	s := newSite(t, Options{})
	ctx := context.Background()
	res, err := s.GetSchema(ctx, postID, widgets.ModeAdd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"title"}, res.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
	if res.StartValue["published"] != false || res.StartValue["body"] != "" {
		t.Fatalf("unexpected start values %v", res.StartValue)
	}
	props := res.Schema["properties"].(map[string]any)
	author := props["author"].(map[string]any)
	if choices, _ := author["choices"].([]descriptor.Choice); len(choices) != 2 {
		t.Fatalf("author choices not loaded: %v", author)
	}

	inst, err := s.GetObject(ctx, postID, "2")
	if err != nil {
		t.Fatal(err)
	}
	res, err = s.GetSchema(ctx, postID, widgets.ModeEdit, inst)
	if err != nil {
		t.Fatal(err)
	}
	if res.StartValue["title"] != "Two" {
		t.Fatalf("edit start value %v", res.StartValue)
	}

	descs, err := s.GetListFilters(postID)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, d := range descs {
		paths = append(paths, d.Path)
	}
	if diff := cmp.Diff([]string{"published", "views", "author", "author.username"}, paths); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.GetListFilters(tagID); !errors.Is(err, adminerr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetActionSpecsFiltersByPermission(t *testing.T) {
	enf, err := rbac.NewEnforcer()
	if err != nil {
		t.Fatal(err)
	}
	if err := enf.Grant("editor", "blog.delete_post"); err != nil {
		t.Fatal(err)
	}
	s := newSite(t, Options{Authz: enf})
	names := func(u rbac.User) []string {
		specs, err := s.GetActionSpecs(context.Background(), postID, u)
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, sp := range specs {
			out = append(out, sp.Name)
		}
		return out
	}
	if diff := cmp.Diff([]string{"publish"}, names(rbac.User{ID: "u1"})); diff != "" {
		t.Fatalf("viewer actions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"delete_selected", "publish"}, names(rbac.User{ID: "u2", Roles: []string{"editor"}})); diff != "" {
		t.Fatalf("editor actions (-want +got):\n%s", diff)
	}
	_, err = s.PerformAction(context.Background(), postID, action.DeleteSelectedName, ActionRequest{IDs: []any{1}}, rbac.User{ID: "u1"})
	if !errors.Is(err, adminerr.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestPerformActionScopes(t *testing.T) {
	mem := newMemStore(t)
	s := newSite(t, Options{Store: mem})
	ctx := context.Background()
	u := rbac.User{ID: "u1"}

	out, err := s.PerformAction(ctx, postID, "publish", ActionRequest{IDs: []any{"2"}}, u)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.Affected != 1 {
		t.Fatalf("unexpected result %+v", out.Result)
	}

	tok, exp, err := s.SignScope(postID, filter.Scope{Filters: map[string]any{"author.username": "ann"}}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("token already expired: %v", exp)
	}
	out, err = s.PerformAction(ctx, postID, action.DeleteSelectedName, ActionRequest{ScopeToken: tok}, u)
	if err != nil {
		t.Fatal(err)
	}
	if out.Total != 2 || out.Result.Affected != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	bad := []ActionRequest{
		{},
		{IDs: []any{1}, Scope: &filter.Scope{}},
		{Scope: &filter.Scope{Filters: map[string]any{"views.icontains": "1"}}},
	}
	for i, req := range bad {
		if _, err := s.PerformAction(ctx, postID, "publish", req, u); !errors.Is(err, adminerr.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := s.PerformAction(ctx, postID, "publish", ActionRequest{ScopeToken: tok + "x"}, u); !errors.Is(err, scopetoken.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := s.PerformAction(ctx, postID, "archive", ActionRequest{IDs: []any{1}}, u); !errors.Is(err, adminerr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := s.SignScope(postID, filter.Scope{Search: "x", Order: []string{"tags"}}, 0); !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("expected validation error for unorderable field, got %v", err)
	}
}

func TestPerformActionInBackground(t *testing.T) {
	mem := newMemStore(t)
	disp := action.NewLocalDispatcher(1, 4)
	done := make(chan action.Record, 4)
	obs := action.ObserverFunc(func(_ context.Context, r action.Record) {
		if r.Kind == action.KindCompleted {
			done <- r
		}
	})
	s, err := NewSite(Options{Store: mem, Dispatcher: disp, Observers: []action.Observer{obs}, Tokens: mustTokens(t)})
	if err != nil {
		t.Fatal(err)
	}
	def := postAdmin()
	def.BackgroundThreshold = 2
	if err := s.Register(def); err != nil {
		t.Fatal(err)
	}
	s.Freeze()
	disp.Start(context.Background(), s)
	defer disp.Close()

	out, err := s.PerformAction(context.Background(), postID, "publish", ActionRequest{Scope: &filter.Scope{}}, rbac.User{ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Background || out.Result != nil {
		t.Fatalf("expected background outcome, got %+v", out)
	}
	select {
	case r := <-done:
		if r.RunID != out.JobID || r.Result.Affected != 3 {
			t.Fatalf("unexpected record %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("background run did not complete")
	}
}

func mustTokens(t *testing.T) *scopetoken.Service {
	t.Helper()
	tok, err := scopetoken.New([]byte("site-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestList(t *testing.T) {
	s := newSite(t, Options{})
	ctx := context.Background()
	titles := func(p *Page) []string {
		var out []string
		for _, r := range p.Items {
			out = append(out, r["title"].(string))
		}
		return out
	}

	page, err := s.List(ctx, postID, url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"One", "Three", "Two"}, titles(page)); diff != "" {
		t.Fatalf("default order (-want +got):\n%s", diff)
	}
	if page.Total != 3 || page.Limit != 50 {
		t.Fatalf("unexpected page %+v", page)
	}

	page, err = s.List(ctx, postID, url.Values{
		"f_published":       {"yes"},
		"f_views.gte":       {"nope"},
		"f_color":           {"red"},
		"f_views.icontains": {"1"},
		"o":                 {"title,-bogus"},
		"limit":             {"1"},
		"offset":            {"1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Filters) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if diff := cmp.Diff([]string{"Three"}, titles(page)); diff != "" {
		t.Fatalf("filtered page (-want +got):\n%s", diff)
	}

	page, err = s.List(ctx, postID, url.Values{"q": {"tw"}, "f_author.username": {"bob"}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Two"}, titles(page)); diff != "" {
		t.Fatalf("search page (-want +got):\n%s", diff)
	}
}

type changeLog struct{ kinds []string }

func (c *changeLog) RecordChange(_ context.Context, ch audit.Change) error {
	c.kinds = append(c.kinds, ch.Kind()+":"+ch.Actor)
	return nil
}

func TestSaveObject(t *testing.T) {
	log := &changeLog{}
	s := newSite(t, Options{Changes: log})
	ctx := context.Background()
	u := rbac.User{ID: "alice"}

	row, err := s.SaveObject(ctx, postID, "", map[string]any{
		"title": "Four", "views": "12", "author": "2", "tags": []any{"1", "2"}, "published": "on",
	}, u)
	if err != nil {
		t.Fatal(err)
	}
	want := store.Row{"id": int64(4), "title": "Four", "views": int64(12), "author": int64(2), "tags": []any{int64(1), int64(2)}, "published": true}
	if diff := cmp.Diff(want, row); diff != "" {
		t.Fatalf("created row (-want +got):\n%s", diff)
	}

	row, err = s.SaveObject(ctx, postID, "4", map[string]any{"views": 13, "tags": []any{}}, u)
	if err != nil {
		t.Fatal(err)
	}
	if row["views"] != int64(13) || len(row["tags"].([]any)) != 0 || row["title"] != "Four" {
		t.Fatalf("updated row %v", row)
	}

	_, err = s.SaveObject(ctx, postID, "", map[string]any{"title": "One"}, u)
	var ie *adminerr.IntegrityError
	if !errors.As(err, &ie) || ie.Message != "a post with this title already exists" {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if _, err := s.SaveObject(ctx, postID, "", map[string]any{"title": "Five", "views": "x"}, u); !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.SaveObject(ctx, postID, "99", map[string]any{"title": "Five"}, u); !errors.Is(err, adminerr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if diff := cmp.Diff([]string{"add:alice", "update:alice"}, log.kinds); diff != "" {
		t.Fatalf("audit mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveObjectPermissions(t *testing.T) {
	enf, err := rbac.NewEnforcer()
	if err != nil {
		t.Fatal(err)
	}
	if err := enf.Grant("author", AddPerm(postID)); err != nil {
		t.Fatal(err)
	}
	s := newSite(t, Options{Authz: enf})
	u := rbac.User{ID: "u1", Roles: []string{"author"}}
	if _, err := s.SaveObject(context.Background(), postID, "", map[string]any{"title": "Mine"}, u); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveObject(context.Background(), postID, "1", map[string]any{"title": "Theirs"}, u); !errors.Is(err, adminerr.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}
