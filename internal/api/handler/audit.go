package handler

import (
	"context"
	"net/http"
	"time"

	humago "github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcadmin/internal/admin"
	"github.com/faciam-dev/gcadmin/internal/audit"
)

// AuditHandler serves the recorded change history of objects.
type AuditHandler struct {
	Site     *admin.Site
	Recorder *audit.Recorder
}

type historyParams struct {
	App   string `path:"app"`
	Model string `path:"model"`
	ID    string `path:"id"`
	Limit int    `query:"limit" minimum:"0" maximum:"200"`
}

// HistoryEntry is one change with its unified diff.
type HistoryEntry struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	AppliedAt time.Time      `json:"appliedAt"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	Unified   string         `json:"unified"`
	Added     int            `json:"added"`
	Removed   int            `json:"removed"`
}

type historyOut struct {
	Body struct {
		Items []HistoryEntry `json:"items"`
	}
}

func RegisterAudit(api humago.API, h *AuditHandler) {
	humago.Register(api, humago.Operation{
		OperationID: "objectHistory",
		Method:      http.MethodGet,
		Path:        "/v1/admin/{app}/{model}/objects/{id}/history",
		Summary:     "List recorded changes of an object",
		Tags:        []string{"Audit"},
	}, h.history)
}

func (h *AuditHandler) history(ctx context.Context, p *historyParams) (*historyOut, error) {
	id := modelParams{App: p.App, Model: p.Model}.id()
	if _, err := h.Site.Describe(id); err != nil {
		return nil, toHTTP(err)
	}
	entries, err := h.Recorder.History(ctx, id, p.ID, p.Limit)
	if err != nil {
		return nil, toHTTP(err)
	}
	out := &historyOut{}
	out.Body.Items = make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		var before, after any
		if e.Before != nil {
			before = e.Before
		}
		if e.After != nil {
			after = e.After
		}
		unified, _, _ := audit.Diff(before, after)
		out.Body.Items = append(out.Body.Items, HistoryEntry{
			ID:        e.ID,
			Actor:     e.Actor,
			Action:    e.Action,
			AppliedAt: e.AppliedAt,
			Before:    e.Before,
			After:     e.After,
			Unified:   unified,
			Added:     e.Added,
			Removed:   e.Removed,
		})
	}
	return out, nil
}
