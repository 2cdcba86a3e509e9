// Package identity exposes the auth gateway over HTTP as a JSON API. It owns
// the route table, the bearer-token middleware, and the single place where
// domain errors become status codes.
package identity
