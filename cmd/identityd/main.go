// Command identityd serves the identity HTTP API backed by Postgres, with
// optional Redis for session and action-token state and Postmark for
// outbound email. All configuration comes from the environment; see the
// config structs of the packages wired below for the full variable list.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/authkit/modules/identity"
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/config"
	"github.com/dmitrymomot/authkit/pkg/email"
	"github.com/dmitrymomot/authkit/pkg/httpserver"
	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/pg"
	"github.com/dmitrymomot/authkit/pkg/ratelimiter"
	"github.com/dmitrymomot/authkit/pkg/redis"
	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/token"
	"github.com/dmitrymomot/authkit/pkg/userstore"
)

type appConfig struct {
	// TokenSecrets holds the action token encryption keys, newest first.
	// Older keys stay valid for decryption so rotation does not invalidate
	// outstanding reset and confirmation links.
	TokenSecrets []string `env:"TOKEN_SECRETS,required" envSeparator:","`

	// DevEmailDir receives rendered emails as files when no Postmark token
	// is configured.
	DevEmailDir string `env:"DEV_EMAIL_DIR" envDefault:"./outbox"`

	LoginBurst          int           `env:"LOGIN_RATE_BURST" envDefault:"10"`
	LoginRefillRate     int           `env:"LOGIN_RATE_REFILL" envDefault:"5"`
	LoginRefillInterval time.Duration `env:"LOGIN_RATE_INTERVAL" envDefault:"1m"`
}

func main() {
	log := logger.New(logger.WithService("identityd"))

	if err := run(log); err != nil {
		log.Error("identityd exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var appCfg appConfig
	if err := config.Load(&appCfg); err != nil {
		return err
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := userstore.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	store := userstore.New(pool)

	var sessCfg session.Config
	if err := config.Load(&sessCfg); err != nil {
		return err
	}

	var sessionStore session.Store = session.NewMemoryStore(sessCfg.CleanupInterval)
	var tokenStore auth.TokenStore = auth.NewMemoryTokenStore()
	if os.Getenv("REDIS_URL") != "" {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		sessionStore = session.NewRedisStore(client)
		tokenStore = auth.NewRedisTokenStore(client)
		log.Info("using redis for session and token state")
	} else {
		log.Info("using in-memory session and token state")
	}

	sessions := session.New(
		session.WithStore(sessionStore),
		session.WithConfig(sessCfg),
		session.WithLogger(log),
	)

	codec, err := token.New(appCfg.TokenSecrets)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	notifier, err := buildNotifier(appCfg, log)
	if err != nil {
		return err
	}

	var authCfg auth.Config
	if err := config.Load(&authCfg); err != nil {
		return err
	}

	flow := auth.NewFlow(codec, tokenStore, store, notifier, authCfg,
		auth.WithFlowLogger(log))
	verifier := auth.NewPasswordVerifier(store,
		auth.WithEmailUsername(authCfg.EmailUsername),
		auth.WithVerifierLogger(log))

	gatewayOpts := []auth.GatewayOption{
		auth.WithGatewayConfig(authCfg),
		auth.WithGatewayLogger(log),
	}
	if os.Getenv("GOOGLE_OAUTH_CLIENT_ID") != "" {
		var googleCfg auth.GoogleConfig
		if err := config.Load(&googleCfg); err != nil {
			return err
		}
		providers := auth.NewProviderVerifier(store, []auth.ProviderAdapter{
			auth.NewGoogleAdapter(googleCfg),
		})
		gatewayOpts = append(gatewayOpts, auth.WithProviders(providers))
		log.Info("google provider login enabled")
	}
	gateway := auth.NewGateway(store, sessions, flow, verifier, gatewayOpts...)

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Capacity:       appCfg.LoginBurst,
		RefillRate:     appCfg.LoginRefillRate,
		RefillInterval: appCfg.LoginRefillInterval,
	})
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var identityCfg identity.Config
	if err := config.Load(&identityCfg); err != nil {
		return err
	}
	svc := identity.New(gateway,
		identity.WithConfig(identityCfg),
		identity.WithRateLimiter(limiter),
		identity.WithLogger(log),
	)

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	log.Info("identityd listening", "addr", httpCfg.Addr)
	return srv.Run(ctx, svc.Handler())
}

func buildNotifier(cfg appConfig, log *slog.Logger) (*email.Notifier, error) {
	var notifierCfg email.NotifierConfig
	if err := config.Load(&notifierCfg); err != nil {
		return nil, err
	}

	if os.Getenv("POSTMARK_SERVER_TOKEN") == "" {
		log.Warn("no postmark token configured, writing emails to disk", "dir", cfg.DevEmailDir)
		return email.NewNotifier(email.NewDevSender(cfg.DevEmailDir), notifierCfg), nil
	}

	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return nil, err
	}
	sender, err := email.NewPostmarkClient(emailCfg)
	if err != nil {
		return nil, fmt.Errorf("postmark client: %w", err)
	}
	return email.NewNotifier(sender, notifierCfg), nil
}
