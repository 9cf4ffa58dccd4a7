package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/faciam-dev/gcadmin/internal/widgets"
)

func TestWidgetHandlerListAndNotModified(t *testing.T) {
	reg := widgets.NewRegistry()
	if err := reg.RegisterAlias(widgets.Alias{ID: "slug", Name: "Slug", Base: widgets.KeyTextInput}); err != nil {
		t.Fatalf("alias: %v", err)
	}
	reg.Freeze()
	h := &WidgetHandler{Reg: reg}
	out, err := h.list(context.Background(), &listWidgetParams{Q: "slug"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out.Body.Total != 1 || out.Body.Widgets[0].ID != "slug" {
		t.Fatalf("unexpected widgets %+v", out.Body.Widgets)
	}
	if out.ETag == "" {
		t.Fatalf("missing etag")
	}

	_, err = h.list(context.Background(), &listWidgetParams{IfNoneMatch: out.ETag})
	if statusOf(t, err) != http.StatusNotModified {
		t.Fatalf("expected 304")
	}
}
