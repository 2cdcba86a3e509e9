// Package userstore persists users, password hashes, and provider links in
// PostgreSQL, implementing the auth.Storage contract. Schema migrations are
// embedded and applied through pkg/pg.
package userstore
