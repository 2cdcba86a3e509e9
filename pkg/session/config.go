package session

import "time"

// Config holds session lifecycle configuration.
type Config struct {
	// TTL is how long a session lives after creation or refresh.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// CleanupInterval for expired sessions in stores that purge eagerly
	// (0 to disable).
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`
}

// DefaultConfig returns default session configuration.
func DefaultConfig() Config {
	return Config{
		TTL:             24 * time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}
