package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClientRoutes(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "GET /v1/admin/models":
			_, _ = w.Write([]byte(`{"models":[{"app":"blog","model":"post","pk":"id"}]}`))
		case "GET /v1/admin/blog/post/objects":
			if r.URL.Query().Get("f_status") != "live" {
				t.Errorf("filter not forwarded: %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"items":[{"id":1}],"total":1,"limit":20,"offset":0}`))
		case "POST /v1/admin/blog/post/actions/publish":
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"background":false,"total":2,"result":{"ok":true,"affected":2,"skipped":0,"errors":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"title":"Not Found","detail":"no such model"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithToken("tok"))
	ctx := context.Background()

	models, err := c.Models(ctx)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if diff := cmp.Diff([]Model{{App: "blog", Model: "post", PK: "id"}}, models); diff != "" {
		t.Fatalf("models mismatch (-want +got)\n%s", diff)
	}

	page, err := c.List(ctx, "blog", "post", url.Values{"f_status": {"live"}})
	if err != nil || page.Total != 1 {
		t.Fatalf("list: %+v %v", page, err)
	}

	out, err := c.Run(ctx, "blog", "post", "publish", RunRequest{IDs: []any{1, 2}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Result == nil || out.Result.Affected != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if diff := cmp.Diff(map[string]any{"ids": []any{float64(1), float64(2)}}, gotBody); diff != "" {
		t.Fatalf("body mismatch (-want +got)\n%s", diff)
	}

	_, err = c.Filters(ctx, "blog", "nope")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Detail != "no such model" {
		t.Fatalf("expected 404 api error, got %v", err)
	}

	if _, err := New(srv.URL).Models(ctx); err == nil {
		t.Fatalf("expected unauthorized error")
	}
}
