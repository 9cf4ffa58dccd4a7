package handler

import (
	"errors"

	humago "github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/scopetoken"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
)

// toHTTP maps admin errors to huma status errors.
func toHTTP(err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *adminerr.ValidationError
		se humago.StatusError
	)
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, scopetoken.ErrInvalidToken):
		return humago.Error422UnprocessableEntity(err.Error(), &humago.ErrorDetail{Location: "body.scopeToken", Message: err.Error()})
	case errors.As(err, &ve):
		return humago.Error422UnprocessableEntity(ve.Error(), &humago.ErrorDetail{Location: ve.Field, Message: ve.Reason, Value: ve.Operator})
	case errors.Is(err, adminerr.ErrPermissionDenied):
		return humago.Error403Forbidden(err.Error())
	case errors.Is(err, adminerr.ErrNotFound):
		return humago.Error404NotFound(err.Error())
	case errors.Is(err, adminerr.ErrIntegrity):
		return humago.Error409Conflict(err.Error())
	case errors.Is(err, adminerr.ErrConfiguration):
		logger.L.Error("admin misconfigured", "err", err)
		return humago.Error500InternalServerError(err.Error())
	}
	logger.L.Error("admin request failed", "err", err)
	return humago.Error500InternalServerError("internal error")
}
