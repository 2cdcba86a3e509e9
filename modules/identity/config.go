package identity

// Config holds the HTTP-facing knobs of the identity module.
type Config struct {
	// ConfirmEmailRedirectURL, when set, turns GET /confirm-email/{token}
	// into a redirect carrying ?success=true or ?error=<code> instead of a
	// JSON response. Browsers land somewhere useful; API clients leave it
	// unset.
	ConfirmEmailRedirectURL string `env:"IDENTITY_CONFIRM_EMAIL_REDIRECT_URL"`
}
