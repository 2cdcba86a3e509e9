package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/session"
)

type contextKey struct{ name string }

var (
	sessionInfoKey = contextKey{"session_info"}
	bearerTokenKey = contextKey{"bearer_token"}
)

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// requireSession authenticates the bearer token against the gateway and puts
// the session info and raw token into the request context.
func (s *Service) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, session.ErrSessionNotFound)
			return
		}

		info, err := s.gateway.SessionInfo(r.Context(), tok)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionInfoKey, info)
		ctx = context.WithValue(ctx, bearerTokenKey, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromContext returns the authenticated session placed by
// requireSession.
func sessionFromContext(ctx context.Context) *auth.SessionInfo {
	info, _ := ctx.Value(sessionInfoKey).(*auth.SessionInfo)
	return info
}

func tokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(bearerTokenKey).(string)
	return tok
}
