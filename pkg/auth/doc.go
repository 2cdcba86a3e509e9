// Package auth implements credential verification and account lifecycle
// management for bearer-token identity services.
//
// The package is organised around a small set of collaborators behind
// interfaces:
//
//   - Storage persists users, password hashes, and provider links
//   - TokenStore enforces at-most-once consumption of action tokens
//   - Notifier delivers reset and confirmation tokens out of band
//   - ProviderAdapter resolves external identity assertions
//
// PasswordVerifier and ProviderVerifier authenticate local and external
// credentials respectively; both collapse every failure into ErrAuthFailed so
// callers cannot distinguish an unknown identifier from a wrong password.
// Flow drives the single-use password-reset and email-confirmation token
// lifecycles on top of the pkg/token codec. Gateway composes all of it with a
// session registry into the single surface transports consume.
//
// Behavioral switches (session on registration, email confirmation
// requirements, email-as-username mode) live in Config and are loaded from
// the environment the same way as the rest of the module.
package auth
