// Package redis bootstraps go-redis clients for the session and action token
// stores. Connect retries until the server is reachable or the configured
// timeout passes, and Healthcheck plugs into readiness probes.
package redis
