package handler

import (
	"context"
	"net/http"
	"time"

	humago "github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/server/middleware"
	"github.com/faciam-dev/gcadmin/internal/widgets"
)

type WidgetHandler struct {
	Reg *widgets.Registry
}

type listWidgetParams struct {
	Q               string    `query:"q"`
	Base            string    `query:"base"`
	Limit           int       `query:"limit"`
	Offset          int       `query:"offset"`
	IfNoneMatch     string    `header:"If-None-Match"`
	IfModifiedSince time.Time `header:"If-Modified-Since"`
}

type widgetsOut struct {
	ETag         string `header:"ETag"`
	LastModified string `header:"Last-Modified"`
	Body         struct {
		Widgets []widgets.Definition `json:"widgets"`
		Total   int                  `json:"total"`
	}
}

func RegisterWidget(api humago.API, h *WidgetHandler) {
	humago.Register(api, humago.Operation{
		OperationID: "listWidgets",
		Method:      http.MethodGet,
		Path:        "/v1/metadata/widgets",
		Summary:     "List widgets",
		Tags:        []string{"Metadata"},
	}, h.list)
}

func (h *WidgetHandler) list(ctx context.Context, p *listWidgetParams) (*widgetsOut, error) {
	u, _ := middleware.UserFromContext(ctx)
	logger.L.Debug("widgets list", "user", u.ID)

	opt := widgets.Options{Q: p.Q, Base: p.Base, Limit: p.Limit, Offset: p.Offset}
	items, total, etag, last, err := h.Reg.List(ctx, opt)
	if err != nil {
		return nil, err
	}
	lastStr := last.UTC().Format(http.TimeFormat)
	if (p.IfNoneMatch != "" && p.IfNoneMatch == etag) ||
		(!p.IfModifiedSince.IsZero() && !last.After(p.IfModifiedSince)) {
		hdr := http.Header{}
		hdr.Set("ETag", etag)
		hdr.Set("Last-Modified", lastStr)
		return nil, humago.ErrorWithHeaders(humago.NewError(http.StatusNotModified, ""), hdr)
	}

	out := &widgetsOut{ETag: etag, LastModified: lastStr}
	out.Body.Widgets = items
	out.Body.Total = total
	return out, nil
}
