package handler

import (
	"context"
	"net/http"
	"time"

	humago "github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/admin"
	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

type actionsOut struct {
	Body struct {
		Actions []action.Spec `json:"actions"`
	}
}

type performInput struct {
	App   string `path:"app"`
	Model string `path:"model"`
	Name  string `path:"name"`
	Body  admin.ActionRequest
}

type performOut struct {
	Status int
	Body   *action.Outcome
}

type signScopeInput struct {
	App   string `path:"app"`
	Model string `path:"model"`
	Body  struct {
		Scope      filter.Scope `json:"scope"`
		TTLSeconds int          `json:"ttlSeconds,omitempty" minimum:"0"`
	}
}

type ScopeToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type signScopeOut struct {
	Body ScopeToken
}

type verifyScopeInput struct {
	Body struct {
		Token string `json:"token"`
	}
}

type VerifiedScope struct {
	Model descriptor.ModelID `json:"model"`
	Scope filter.Scope       `json:"scope"`
}

type verifyScopeOut struct {
	Body VerifiedScope
}

func registerActions(api humago.API, h *AdminHandler) {
	humago.Register(api, humago.Operation{
		OperationID: "listActions",
		Method:      http.MethodGet,
		Path:        "/v1/admin/{app}/{model}/actions",
		Summary:     "List permitted actions",
		Tags:        []string{"Actions"},
	}, h.actions)
	humago.Register(api, humago.Operation{
		OperationID: "performAction",
		Method:      http.MethodPost,
		Path:        "/v1/admin/{app}/{model}/actions/{name}",
		Summary:     "Perform action",
		Tags:        []string{"Actions"},
	}, h.perform)
	humago.Register(api, humago.Operation{
		OperationID:   "signScope",
		Method:        http.MethodPost,
		Path:          "/v1/admin/{app}/{model}/scope-tokens",
		Summary:       "Sign scope token",
		Tags:          []string{"Actions"},
		DefaultStatus: http.StatusCreated,
	}, h.signScope)
	humago.Register(api, humago.Operation{
		OperationID: "verifyScope",
		Method:      http.MethodPost,
		Path:        "/v1/admin/scope-tokens/verify",
		Summary:     "Verify scope token",
		Tags:        []string{"Actions"},
	}, h.verifyScope)
}

func (h *AdminHandler) actions(ctx context.Context, p *modelParams) (*actionsOut, error) {
	specs, err := h.Site.GetActionSpecs(ctx, p.id(), userOf(ctx))
	if err != nil {
		return nil, toHTTP(err)
	}
	out := &actionsOut{}
	out.Body.Actions = specs
	return out, nil
}

// perform answers 200 with the result of an inline run and 202 with the job
// id of a background run.
func (h *AdminHandler) perform(ctx context.Context, in *performInput) (*performOut, error) {
	id := descriptor.ModelID{App: in.App, Model: in.Model}
	o, err := h.Site.PerformAction(ctx, id, in.Name, in.Body, userOf(ctx))
	if err != nil {
		return nil, toHTTP(err)
	}
	status := http.StatusOK
	if o.Background {
		status = http.StatusAccepted
	}
	return &performOut{Status: status, Body: o}, nil
}

func (h *AdminHandler) signScope(ctx context.Context, in *signScopeInput) (*signScopeOut, error) {
	id := descriptor.ModelID{App: in.App, Model: in.Model}
	tok, exp, err := h.Site.SignScope(id, in.Body.Scope, time.Duration(in.Body.TTLSeconds)*time.Second)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &signScopeOut{Body: ScopeToken{Token: tok, ExpiresAt: exp}}, nil
}

func (h *AdminHandler) verifyScope(ctx context.Context, in *verifyScopeInput) (*verifyScopeOut, error) {
	model, sc, err := h.Site.VerifyScope(in.Body.Token)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &verifyScopeOut{Body: VerifiedScope{Model: model, Scope: sc}}, nil
}
