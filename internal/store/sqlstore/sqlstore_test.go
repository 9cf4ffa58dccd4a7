package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

var (
	authorID = descriptor.ModelID{App: "blog", Model: "author"}
	postID   = descriptor.ModelID{App: "blog", Model: "post"}
)

func source(t *testing.T) descriptor.Source {
	t.Helper()
	author := descriptor.MustModel(authorID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "name", Kind: descriptor.KindString, Required: true, MaxLength: 80},
	)
	post := descriptor.MustModel(postID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "title", Kind: descriptor.KindString, Required: true, Meta: map[string]any{"unique": true}},
		descriptor.Field{Name: "views", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "author", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationFK, Target: authorID}},
		descriptor.Field{Name: "tags", Kind: descriptor.KindInteger, Relation: &descriptor.Relation{Kind: descriptor.RelationM2M, Target: authorID}},
	)
	src, err := descriptor.NewStaticSource(author, post)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func newMock(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := New(db, driver, source(t))
	if err != nil {
		t.Fatal(err)
	}
	return s, mock
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := New(db, "oracle", source(t)); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := New(nil, "postgres", source(t)); err == nil {
		t.Fatalf("expected nil db error")
	}
}

func TestFetchAllLoadsM2M(t *testing.T) {
	s, mock := newMock(t, "postgres")
	mock.ExpectQuery(`SELECT .* FROM "blog_post"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "views", "author"}).
			AddRow(int64(1), []byte("Hello"), int64(10), int64(1)).
			AddRow(int64(2), []byte("World"), int64(3), nil))
	mock.ExpectQuery(`SELECT .* FROM "blog_post_tags"`).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "author_id"}).
			AddRow(int64(1), int64(2)).
			AddRow(int64(1), int64(3)))

	rows, err := s.FetchAll(context.Background(), store.NewQuery(postID).OrderBy("-views"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := []store.Row{
		{"id": int64(1), "title": "Hello", "views": int64(10), "author": int64(1), "tags": []any{int64(2), int64(3)}},
		{"id": int64(2), "title": "World", "views": int64(3), "author": nil, "tags": []any{}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountAndNotFound(t *testing.T) {
	s, mock := newMock(t, "postgres")
	ctx := context.Background()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "blog_post"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := s.Count(ctx, store.NewQuery(postID).Limit(1))
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "blog_post"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	if err := s.Delete(ctx, postID, int64(9)); !errors.Is(err, store.ErrNotFoundInStore) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t, "postgres")
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "blog_post"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`UPDATE "blog_post"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "blog_post_title_key"})

	err := s.Save(context.Background(), postID, int64(1), store.Row{"title": "Dup", "tags": []any{int64(1)}})
	var iv *store.IntegrityViolation
	if !errors.As(err, &iv) || iv.Constraint != "blog_post_title_key" {
		t.Fatalf("expected integrity violation, got %v", err)
	}
}

func TestCreateMySQL(t *testing.T) {
	s, mock := newMock(t, "mysql")
	mock.ExpectExec("INSERT INTO .*blog_author").WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery("SELECT .* FROM .*blog_author").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(5), []byte("Ann")))

	row, err := s.Create(context.Background(), authorID, store.Row{"name": "Ann"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if diff := cmp.Diff(store.Row{"id": int64(5), "name": "Ann"}, row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}

	mock.ExpectExec("INSERT INTO .*blog_author").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'Ann'"})
	_, err = s.Create(context.Background(), authorID, store.Row{"name": "Ann"})
	var iv *store.IntegrityViolation
	if !errors.As(err, &iv) {
		t.Fatalf("expected integrity violation, got %v", err)
	}
}

func TestMapErrPassesThrough(t *testing.T) {
	s, _ := newMock(t, "postgres")
	err := s.mapErr(postID, sql.ErrConnDone)
	var iv *store.IntegrityViolation
	if errors.As(err, &iv) || !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("unexpected mapping: %v", err)
	}
	if s.mapErr(postID, &pq.Error{Code: "42P01"}) == nil {
		t.Fatalf("expected error")
	}
	if err := s.mapErr(postID, &pq.Error{Code: "42P01"}); errors.As(err, &iv) {
		t.Fatalf("undefined table is not an integrity error")
	}
}

func TestDDL(t *testing.T) {
	s, _ := newMock(t, "postgres")
	post, err := s.ModelDescriptor(postID)
	if err != nil {
		t.Fatal(err)
	}
	stmts, err := s.DDL(post)
	if err != nil {
		t.Fatalf("ddl: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected table and join table, got %d statements", len(stmts))
	}
	for _, want := range []string{
		s.quote("id") + " BIGSERIAL PRIMARY KEY",
		s.quote("title") + " VARCHAR(255) NOT NULL UNIQUE",
		s.quote("author") + " BIGINT",
	} {
		if !strings.Contains(stmts[0], want) {
			t.Fatalf("%q missing from %s", want, stmts[0])
		}
	}
	if strings.Contains(stmts[0], s.quote("tags")) {
		t.Fatalf("m2m field must not become a column: %s", stmts[0])
	}
	if !strings.Contains(stmts[1], s.quote("blog_post_tags")) || !strings.Contains(stmts[1], "PRIMARY KEY ("+s.quote("post_id")) {
		t.Fatalf("unexpected join table: %s", stmts[1])
	}

	my, _ := newMock(t, "mysql")
	author, _ := my.ModelDescriptor(authorID)
	stmts, _ = my.DDL(author)
	if !strings.Contains(stmts[0], "BIGINT AUTO_INCREMENT PRIMARY KEY") || !strings.Contains(stmts[0], "VARCHAR(80)") {
		t.Fatalf("unexpected mysql ddl: %s", stmts[0])
	}
}
