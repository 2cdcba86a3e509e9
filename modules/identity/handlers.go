package identity

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/fingerprint"
	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/session"
)

type sessionResponse struct {
	Token       string    `json:"token"`
	UserID      uuid.UUID `json:"user_id"`
	Method      string    `json:"method"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toSessionResponse(sess *session.Session) *sessionResponse {
	return &sessionResponse{
		Token:       sess.Token,
		UserID:      sess.UserID,
		Method:      sess.Method,
		Fingerprint: sess.Fingerprint,
		CreatedAt:   sess.CreatedAt,
		RefreshedAt: sess.RefreshedAt,
		ExpiresAt:   sess.ExpiresAt,
	}
}

type userResponse struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username,omitempty"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) *userResponse {
	return &userResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmed,
		CreatedAt:      u.CreatedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed_body"})
		return false
	}
	return true
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier  string `json:"identifier"`
		Password    string `json:"password"`
		Fingerprint string `json:"fingerprint"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Fingerprint == "" {
		req.Fingerprint = fingerprint.Generate(r)
	}

	sess, err := s.gateway.Login(r.Context(), req.Identifier, req.Password, req.Fingerprint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Service) handleProviderLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assertion   string `json:"assertion"`
		Fingerprint string `json:"fingerprint"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Fingerprint == "" {
		req.Fingerprint = fingerprint.Generate(r)
	}

	sess, err := s.gateway.LoginWithProvider(r.Context(), chi.URLParam(r, "provider"), req.Assertion, req.Fingerprint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, sess, err := s.gateway.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		User    *userResponse    `json:"user"`
		Session *sessionResponse `json:"session,omitempty"`
	}{User: toUserResponse(user)}
	if sess != nil {
		resp.Session = toSessionResponse(sess)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Service) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.gateway.ForgotPassword(r.Context(), req.Identifier); err != nil {
		s.log.Error("forgot password failed",
			logger.Error(err),
			logger.Component("identity"),
		)
		writeError(w, err)
		return
	}
	// Same acknowledgment whether or not the identifier exists.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func (s *Service) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, sess, err := s.gateway.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		User    *userResponse    `json:"user"`
		Session *sessionResponse `json:"session,omitempty"`
	}{User: toUserResponse(user)}
	if sess != nil {
		resp.Session = toSessionResponse(sess)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	user, err := s.gateway.ConfirmEmail(r.Context(), chi.URLParam(r, "token"))

	if s.config.ConfirmEmailRedirectURL != "" {
		s.redirectConfirmResult(w, r, err)
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Service) redirectConfirmResult(w http.ResponseWriter, r *http.Request, err error) {
	q := url.Values{}
	if err != nil {
		_, code := mapError(err)
		q.Set("error", code)
	} else {
		q.Set("success", "true")
	}
	http.Redirect(w, r, s.config.ConfirmEmailRedirectURL+"?"+q.Encode(), http.StatusSeeOther)
}

func (s *Service) handleValidateUsername(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.ValidateUsername(r.Context(), chi.URLParam(r, "username")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Service) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed_email"})
		return
	}
	if err := s.gateway.ValidateEmail(r.Context(), email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, err := s.gateway.Refresh(r.Context(), tokenFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Logout(r.Context(), tokenFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleLogoutOthers(w http.ResponseWriter, r *http.Request) {
	n, err := s.gateway.LogoutOthers(r.Context(), tokenFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Service) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.gateway.LogoutAll(r.Context(), tokenFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Service) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	info := sessionFromContext(r.Context())
	if err := s.gateway.ChangePassword(r.Context(), info.UserID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewEmail        string `json:"new_email"`
		CurrentPassword string `json:"current_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	info := sessionFromContext(r.Context())
	outcome, err := s.gateway.ChangeEmail(r.Context(), info.UserID, req.NewEmail, req.CurrentPassword)
	if err != nil {
		writeError(w, err)
		return
	}

	status := "applied"
	if outcome == auth.EmailChangePending {
		status = "pending_confirmation"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Service) handleUnlink(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())
	if err := s.gateway.Unlink(r.Context(), info.UserID, chi.URLParam(r, "provider")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFromContext(r.Context()))
}
