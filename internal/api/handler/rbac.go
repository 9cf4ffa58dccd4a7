package handler

import (
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcadmin/internal/rbac"
)

// RBACHandler lists the persisted role grants.
type RBACHandler struct {
	Grants *rbac.Grants
}

type Role struct {
	Name  string   `json:"name"`
	Perms []string `json:"perms"`
}

type listRolesOutput struct {
	Body struct {
		Roles []Role `json:"roles"`
	}
}

func RegisterRBAC(api huma.API, h *RBACHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listRoles",
		Method:      http.MethodGet,
		Path:        "/v1/admin/roles",
		Summary:     "List roles and their permissions",
		Tags:        []string{"RBAC"},
	}, h.listRoles)
}

func (h *RBACHandler) listRoles(ctx context.Context, _ *struct{}) (*listRolesOutput, error) {
	perms, err := h.Grants.RolePerms(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	out := &listRolesOutput{}
	out.Body.Roles = make([]Role, 0, len(perms))
	for name, ps := range perms {
		out.Body.Roles = append(out.Body.Roles, Role{Name: name, Perms: ps})
	}
	slices.SortFunc(out.Body.Roles, func(a, b Role) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, nil
}
