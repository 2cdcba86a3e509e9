// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts, lifecycle hooks, and probe handlers. It is the serving shell the
// identity API runs inside:
//
//	srv := httpserver.NewFromConfig(cfg)
//	if err := srv.Run(ctx, identitySvc.Handler()); err != nil {
//		log.Error("server stopped", "error", err)
//	}
//
// Run blocks until the context is cancelled or an interrupt/TERM signal
// arrives, then drains in-flight requests within the shutdown timeout.
package httpserver
