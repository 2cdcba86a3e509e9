package identity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/ratelimiter"
)

// Service mounts the identity API onto a chi router.
type Service struct {
	gateway *auth.Gateway
	config  Config
	limiter *ratelimiter.Bucket
	log     *slog.Logger
}

type Option func(*Service)

// WithConfig overrides the module configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithRateLimiter throttles the credential endpoints (login, register,
// forgot-password) per client IP.
func WithRateLimiter(tb *ratelimiter.Bucket) Option {
	return func(s *Service) {
		s.limiter = tb
	}
}

// WithLogger sets a custom logger for the module.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// New creates the identity HTTP service over a gateway.
func New(gateway *auth.Gateway, opts ...Option) *Service {
	s := &Service{
		gateway: gateway,
		log:     logger.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table. Mount it wherever the host application
// wants the identity surface to live.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(ratelimiter.Middleware(s.limiter, ratelimiter.KeyByIP))
		}
		r.Post("/login", s.handleLogin)
		r.Post("/login/{provider}", s.handleProviderLogin)
		r.Post("/register", s.handleRegister)
		r.Post("/forgot-password", s.handleForgotPassword)
	})

	r.Post("/password-reset", s.handlePasswordReset)
	r.Get("/confirm-email/{token}", s.handleConfirmEmail)
	r.Get("/validate-username/{username}", s.handleValidateUsername)
	r.Get("/validate-email/{email}", s.handleValidateEmail)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Post("/logout-others", s.handleLogoutOthers)
		r.Post("/logout-all", s.handleLogoutAll)
		r.Post("/password-change", s.handlePasswordChange)
		r.Post("/change-email", s.handleChangeEmail)
		r.Post("/unlink/{provider}", s.handleUnlink)
		r.Get("/session", s.handleSession)
	})

	return r
}
