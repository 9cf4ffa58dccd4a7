package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	sm "github.com/faciam-dev/gcadmin/internal/server/middleware"
)

type Handler struct {
	JWT *JWT
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type tokenOutput struct {
	Body tokenResponse
}

func Register(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "refresh",
		Method:      http.MethodPost,
		Path:        "/v1/auth/refresh",
		Summary:     "Refresh token",
		Tags:        []string{"Auth"},
	}, h.refresh)
}

type refreshInput struct{}

func (h *Handler) refresh(ctx context.Context, _ *refreshInput) (*tokenOutput, error) {
	u, ok := sm.UserFromContext(ctx)
	if !ok || u.ID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	tok, exp, err := h.JWT.Generate(u)
	if err != nil {
		return nil, err
	}
	return &tokenOutput{Body: tokenResponse{AccessToken: tok, ExpiresAt: exp}}, nil
}
