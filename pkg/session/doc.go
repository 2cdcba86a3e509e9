// Package session tracks bearer sessions: opaque tokens mapped to a user,
// an issuing method, and an expiry.
//
// The Registry is the single entry point. It creates sessions on successful
// authentication, resolves bearer tokens, extends expiry on refresh, and
// revokes sessions one at a time, per user, or per user minus the caller's
// own.
//
// Persistence sits behind the Store interface. Two implementations ship:
//
//   - MemoryStore: mutex-guarded map with optional background cleanup, for
//     tests and single-process deployments.
//   - RedisStore: one hash per session plus a per-user index set. Refresh and
//     revocation run as Lua scripts, so conditional updates and per-user
//     range deletes are atomic across service instances.
//
// A session is valid only while now < ExpiresAt and it has not been revoked.
// Expired records are logically absent: every lookup filters them out whether
// or not the backing store has purged them yet.
//
// # Usage
//
//	registry := session.New(session.WithStore(store))
//	defer registry.Close()
//
//	sess, err := registry.Create(ctx, userID, "local", fingerprint)
//	sess, err = registry.Refresh(ctx, sess.Token)
//	n, err := registry.RevokeOthers(ctx, userID, sess.Token)
package session
