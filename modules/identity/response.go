package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/token"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

type errorBody struct {
	Error   string                      `json:"error"`
	Details []validator.ValidationError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	body := errorBody{Error: code}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body.Details = verrs
	}
	writeJSON(w, status, body)
}

// mapError is the one place domain errors become transport codes. Handlers
// never pick status codes themselves.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrAuthFailed):
		return http.StatusUnauthorized, "auth_failed"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_not_found"
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusBadRequest, "token_expired"
	case errors.Is(err, token.ErrTokenInvalid):
		return http.StatusBadRequest, "token_invalid"
	case errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusConflict, "username_taken"
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, "email_taken"
	case errors.Is(err, auth.ErrEmailUnchanged):
		return http.StatusConflict, "email_unchanged"
	case errors.Is(err, auth.ErrProviderLinked):
		return http.StatusConflict, "provider_linked"
	case errors.Is(err, auth.ErrLastCredential):
		return http.StatusConflict, "last_credential"
	case errors.Is(err, auth.ErrNoPassword):
		return http.StatusConflict, "no_password"
	case errors.Is(err, auth.ErrUnknownProvider):
		return http.StatusNotFound, "unknown_provider"
	case errors.Is(err, auth.ErrNoProviderLink):
		return http.StatusNotFound, "no_provider_link"
	case validator.IsValidationError(err):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
