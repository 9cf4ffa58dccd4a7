package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

var (
	authorID = descriptor.ModelID{App: "blog", Model: "author"}
	postID   = descriptor.ModelID{App: "blog", Model: "post"}
)

func newStore(t *testing.T) *Store {
	t.Helper()
	author := descriptor.MustModel(authorID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "name", Kind: descriptor.KindString, Required: true},
	)
	post := descriptor.MustModel(postID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "title", Kind: descriptor.KindString, Required: true},
		descriptor.Field{Name: "slug", Kind: descriptor.KindString, Meta: map[string]any{"unique": true}},
		descriptor.Field{Name: "views", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "author", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationFK, Target: authorID}},
		descriptor.Field{Name: "tags", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationM2M, Target: authorID}},
	)
	src, err := descriptor.NewStaticSource(author, post)
	if err != nil {
		t.Fatal(err)
	}
	s := New(src)
	ctx := context.Background()
	if err := s.Seed(ctx, authorID, store.Row{"name": "Ann"}, store.Row{"name": "Bob"}); err != nil {
		t.Fatal(err)
	}
	err = s.Seed(ctx, postID,
		store.Row{"title": "Hello", "slug": "hello", "views": 10, "author": int64(1)},
		store.Row{"title": "World", "slug": "world", "views": 3, "author": int64(2)},
		store.Row{"title": "Again", "slug": "again", "views": 7, "author": int64(1)},
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func titles(rows []store.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r["title"].(string)
	}
	return out
}

func TestFetchAllFilterOrderPage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	q := store.NewQuery(postID).Where("views", store.OpGTE, int64(5)).OrderBy("-views")
	rows, err := s.FetchAll(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Hello", "Again"}, titles(rows)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	rows, _ = s.FetchAll(ctx, store.NewQuery(postID).OrderBy("title").Offset(1).Limit(1))
	if diff := cmp.Diff([]string{"Hello"}, titles(rows)); diff != "" {
		t.Fatalf("page mismatch (-want +got):\n%s", diff)
	}

	n, _ := s.Count(ctx, store.NewQuery(postID).Limit(1))
	if n != 3 {
		t.Fatalf("count must ignore limit, got %d", n)
	}
}

func TestRelationPathAndSearch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rows, err := s.FetchAll(ctx, store.NewQuery(postID).Where("author.name", store.OpIContains, "ann"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 posts by Ann, got %d", len(rows))
	}

	rows, _ = s.FetchAll(ctx, store.NewQuery(postID).WithSearch("WOR", []string{"title", "slug"}))
	if diff := cmp.Diff([]string{"World"}, titles(rows)); diff != "" {
		t.Fatalf("search mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.FetchAll(ctx, store.NewQuery(postID).Where("title.x", store.OpEq, "a")); err == nil {
		t.Fatalf("expected error for traversal through a non-relation")
	}
}

func TestFetchValuesPKIn(t *testing.T) {
	s := newStore(t)
	vals, err := s.FetchValues(context.Background(), store.NewQuery(postID).PKIn("id", []any{int64(3), int64(1)}).OrderBy("id"), "id")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{int64(1), int64(3)}, vals); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestIntegrityViolations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, postID, store.Row{"title": "Dup", "slug": "hello"})
	var iv *store.IntegrityViolation
	if !errors.As(err, &iv) || iv.Constraint != "slug" {
		t.Fatalf("expected unique violation on slug, got %v", err)
	}
	if _, err := s.Create(ctx, postID, store.Row{"slug": "x"}); !errors.As(err, &iv) {
		t.Fatalf("expected required violation, got %v", err)
	}
	if err := s.Save(ctx, postID, int64(2), store.Row{"slug": "hello"}); !errors.As(err, &iv) {
		t.Fatalf("expected unique violation on save, got %v", err)
	}
}

func TestSaveDeleteAndM2M(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, postID, int64(1), store.Row{"views": 11}); err != nil {
		t.Fatal(err)
	}
	row, err := store.Get(ctx, s, postID, int64(1))
	if err != nil || row["views"] != 11 {
		t.Fatalf("save not applied: %v %v", row, err)
	}

	if err := s.M2MAdd(ctx, postID, int64(1), "tags", []any{int64(1), int64(2)}); err != nil {
		t.Fatal(err)
	}
	if err := s.M2MAdd(ctx, postID, int64(1), "tags", []any{int64(2)}); err != nil {
		t.Fatal(err)
	}
	row, _ = store.Get(ctx, s, postID, int64(1))
	if diff := cmp.Diff([]any{int64(1), int64(2)}, row["tags"]); diff != "" {
		t.Fatalf("m2m mismatch (-want +got):\n%s", diff)
	}
	if err := s.M2MClear(ctx, postID, int64(1), "tags"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, postID, int64(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, s, postID, int64(1)); !errors.Is(err, store.ErrNotFoundInStore) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, postID, int64(1)); !errors.Is(err, store.ErrNotFoundInStore) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}

func TestCreateAssignsSequentialPK(t *testing.T) {
	s := newStore(t)
	row, err := s.Create(context.Background(), postID, store.Row{"title": "Fourth"})
	if err != nil {
		t.Fatal(err)
	}
	if row["id"] != int64(4) {
		t.Fatalf("expected pk 4, got %v", row["id"])
	}
}
