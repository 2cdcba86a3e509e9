package auth

import "time"

// Config carries the behavioral switches of the credential flows. Every flag
// has a conservative default so a zero-configured gateway is usable.
type Config struct {
	// LoginOnRegistration creates a session as part of Register.
	LoginOnRegistration bool `env:"AUTH_LOGIN_ON_REGISTRATION" envDefault:"true"`
	// LoginOnPasswordReset creates a session as part of ResetPassword.
	LoginOnPasswordReset bool `env:"AUTH_LOGIN_ON_PASSWORD_RESET" envDefault:"false"`
	// RequireEmailConfirm issues a confirmation token on registration and
	// defers email changes behind one.
	RequireEmailConfirm bool `env:"AUTH_REQUIRE_EMAIL_CONFIRM" envDefault:"true"`
	// RequirePasswordOnEmailChange re-verifies the current password before
	// accepting an email change.
	RequirePasswordOnEmailChange bool `env:"AUTH_REQUIRE_PASSWORD_ON_EMAIL_CHANGE" envDefault:"true"`
	// EmailUsername makes the email address the login identifier; usernames
	// are not collected or validated.
	EmailUsername bool `env:"AUTH_EMAIL_USERNAME" envDefault:"false"`
	// RevokeSessionsOnPasswordReset drops every session of the user after a
	// successful reset.
	RevokeSessionsOnPasswordReset bool `env:"AUTH_REVOKE_SESSIONS_ON_PASSWORD_RESET" envDefault:"true"`

	PasswordResetTTL time.Duration `env:"AUTH_PASSWORD_RESET_TTL" envDefault:"1h"`
	EmailConfirmTTL  time.Duration `env:"AUTH_EMAIL_CONFIRM_TTL" envDefault:"24h"`
}

// DefaultConfig returns the flag defaults without consulting the environment.
func DefaultConfig() Config {
	return Config{
		LoginOnRegistration:           true,
		RequireEmailConfirm:           true,
		RequirePasswordOnEmailChange:  true,
		RevokeSessionsOnPasswordReset: true,
		PasswordResetTTL:              time.Hour,
		EmailConfirmTTL:               24 * time.Hour,
	}
}
