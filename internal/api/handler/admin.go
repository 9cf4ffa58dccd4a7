package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	humago "github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcadmin/internal/admin"
	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/schema"
	"github.com/faciam-dev/gcadmin/internal/server/middleware"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// AdminHandler serves the registered model admins of a Site.
type AdminHandler struct {
	Site *admin.Site
}

type modelParams struct {
	App   string `path:"app"`
	Model string `path:"model"`
}

func (p modelParams) id() descriptor.ModelID {
	return descriptor.ModelID{App: p.App, Model: p.Model}
}

type ModelInfo struct {
	App               string `json:"app"`
	Model             string `json:"model"`
	VerboseName       string `json:"verboseName"`
	VerboseNamePlural string `json:"verboseNamePlural"`
	PK                string `json:"pk"`
}

type modelsOut struct {
	Body struct {
		Models []ModelInfo `json:"models"`
	}
}

type schemaParams struct {
	App   string `path:"app"`
	Model string `path:"model"`
	Mode  string `query:"mode" enum:"add,edit" default:"add"`
	ID    string `query:"id"`
}

type schemaOut struct {
	Body *schema.Result
}

type filtersOut struct {
	Body struct {
		Filters []filter.Descriptor `json:"filters"`
		Search  []string            `json:"search"`
		Order   []string            `json:"orderable"`
	}
}

type listObjectsParams struct {
	App    string `path:"app"`
	Model  string `path:"model"`
	Q      string `query:"q"`
	O      string `query:"o"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`

	values url.Values
}

// Resolve keeps the raw query so filter parameters of any name reach the
// lenient parser.
func (p *listObjectsParams) Resolve(ctx humago.Context) []error {
	u := ctx.URL()
	p.values = u.Query()
	return nil
}

type pageOut struct {
	Body *admin.Page
}

type objectParams struct {
	App   string `path:"app"`
	Model string `path:"model"`
	ID    string `path:"id"`
}

type objectOut struct {
	Body store.Row
}

type createObjectInput struct {
	App   string `path:"app"`
	Model string `path:"model"`
	Body  map[string]any
}

type updateObjectInput struct {
	App   string `path:"app"`
	Model string `path:"model"`
	ID    string `path:"id"`
	Body  map[string]any
}

func RegisterAdmin(api humago.API, h *AdminHandler) {
	humago.Register(api, humago.Operation{
		OperationID: "listModels",
		Method:      http.MethodGet,
		Path:        "/v1/admin/models",
		Summary:     "List registered models",
		Tags:        []string{"Admin"},
	}, h.models)
	humago.Register(api, humago.Operation{
		OperationID: "getSchema",
		Method:      http.MethodGet,
		Path:        "/v1/admin/{app}/{model}/schema",
		Summary:     "Form schema",
		Tags:        []string{"Admin"},
	}, h.schema)
	humago.Register(api, humago.Operation{
		OperationID: "listFilters",
		Method:      http.MethodGet,
		Path:        "/v1/admin/{app}/{model}/filters",
		Summary:     "List filters",
		Tags:        []string{"Admin"},
	}, h.filters)
	humago.Register(api, humago.Operation{
		OperationID: "listObjects",
		Method:      http.MethodGet,
		Path:        "/v1/admin/{app}/{model}/objects",
		Summary:     "List objects",
		Tags:        []string{"Objects"},
	}, h.list)
	humago.Register(api, humago.Operation{
		OperationID: "getObject",
		Method:      http.MethodGet,
		Path:        "/v1/admin/{app}/{model}/objects/{id}",
		Summary:     "Get object",
		Tags:        []string{"Objects"},
	}, h.get)
	humago.Register(api, humago.Operation{
		OperationID:   "createObject",
		Method:        http.MethodPost,
		Path:          "/v1/admin/{app}/{model}/objects",
		Summary:       "Create object",
		Tags:          []string{"Objects"},
		DefaultStatus: http.StatusCreated,
	}, h.create)
	humago.Register(api, humago.Operation{
		OperationID: "updateObject",
		Method:      http.MethodPut,
		Path:        "/v1/admin/{app}/{model}/objects/{id}",
		Summary:     "Update object",
		Tags:        []string{"Objects"},
	}, h.update)
	registerActions(api, h)
}

func userOf(ctx context.Context) rbac.User {
	u, _ := middleware.UserFromContext(ctx)
	return u
}

func (h *AdminHandler) models(ctx context.Context, _ *struct{}) (*modelsOut, error) {
	out := &modelsOut{}
	out.Body.Models = []ModelInfo{}
	for _, id := range h.Site.Models() {
		m, err := h.Site.Describe(id)
		if err != nil {
			return nil, toHTTP(err)
		}
		out.Body.Models = append(out.Body.Models, ModelInfo{
			App:               id.App,
			Model:             id.Model,
			VerboseName:       m.VerboseName(),
			VerboseNamePlural: m.VerboseNamePlural(),
			PK:                m.PKAttr(),
		})
	}
	return out, nil
}

func (h *AdminHandler) schema(ctx context.Context, p *schemaParams) (*schemaOut, error) {
	id := descriptor.ModelID{App: p.App, Model: p.Model}
	mode, err := widgets.ParseMode(p.Mode)
	if err != nil {
		return nil, humago.Error422UnprocessableEntity(err.Error())
	}
	var instance store.Row
	if p.ID != "" {
		if mode != widgets.ModeEdit {
			return nil, humago.Error422UnprocessableEntity("id is only accepted in edit mode")
		}
		if instance, err = h.Site.GetObject(ctx, id, p.ID); err != nil {
			return nil, toHTTP(err)
		}
	}
	res, err := h.Site.GetSchema(ctx, id, mode, instance)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &schemaOut{Body: res}, nil
}

func (h *AdminHandler) filters(ctx context.Context, p *modelParams) (*filtersOut, error) {
	id := p.id()
	fs, err := h.Site.GetListFilters(id)
	if err != nil {
		return nil, toHTTP(err)
	}
	search, order, err := h.Site.ListOptions(id)
	if err != nil {
		return nil, toHTTP(err)
	}
	out := &filtersOut{}
	out.Body.Filters = fs
	out.Body.Search = search
	out.Body.Order = order
	return out, nil
}

func (h *AdminHandler) list(ctx context.Context, p *listObjectsParams) (*pageOut, error) {
	values := p.values
	if values == nil {
		values = url.Values{}
		if p.Q != "" {
			values.Set(admin.SearchParam, p.Q)
		}
		if p.O != "" {
			values.Set(admin.OrderParam, p.O)
		}
		if p.Limit != 0 {
			values.Set(admin.LimitParam, strconv.Itoa(p.Limit))
		}
		if p.Offset != 0 {
			values.Set(admin.OffsetParam, strconv.Itoa(p.Offset))
		}
	}
	page, err := h.Site.List(ctx, descriptor.ModelID{App: p.App, Model: p.Model}, values)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &pageOut{Body: page}, nil
}

func (h *AdminHandler) get(ctx context.Context, p *objectParams) (*objectOut, error) {
	row, err := h.Site.GetObject(ctx, descriptor.ModelID{App: p.App, Model: p.Model}, p.ID)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &objectOut{Body: row}, nil
}

func (h *AdminHandler) create(ctx context.Context, in *createObjectInput) (*objectOut, error) {
	row, err := h.Site.SaveObject(ctx, descriptor.ModelID{App: in.App, Model: in.Model}, "", in.Body, userOf(ctx))
	if err != nil {
		return nil, toHTTP(err)
	}
	return &objectOut{Body: row}, nil
}

func (h *AdminHandler) update(ctx context.Context, in *updateObjectInput) (*objectOut, error) {
	row, err := h.Site.SaveObject(ctx, descriptor.ModelID{App: in.App, Model: in.Model}, in.ID, in.Body, userOf(ctx))
	if err != nil {
		return nil, toHTTP(err)
	}
	return &objectOut{Body: row}, nil
}
