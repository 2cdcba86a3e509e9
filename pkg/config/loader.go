package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache stores parsed configuration structs keyed by their concrete type so
// that each type is parsed from the environment exactly once per process.
type cache struct {
	mu     sync.RWMutex
	values map[string]any
}

var (
	loaded = &cache{values: make(map[string]any)}

	dotenvOnce sync.Once
)

// Load populates the given configuration struct from environment variables
// based on `env` field tags. A .env file, if present, is loaded on the first
// call. Subsequent calls for the same type return the cached value, so a
// config type observed by several components is guaranteed to be consistent.
//
// Example:
//
//	type SessionConfig struct {
//		TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
//	}
//
//	var cfg SessionConfig
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
func Load[T any](v *T) error {
	dotenvOnce.Do(func() {
		// Missing .env is fine; environment variables may be set directly.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	key := typeName[T]()

	loaded.mu.RLock()
	if cached, ok := loaded.values[key]; ok {
		*v = cached.(T)
		loaded.mu.RUnlock()
		return nil
	}
	loaded.mu.RUnlock()

	loaded.mu.Lock()
	defer loaded.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won the race.
	if cached, ok := loaded.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	loaded.values[key] = *v // store a copy to avoid external mutation
	return nil
}

// MustLoad works like Load but panics if configuration loading fails. Use it
// for configuration the application cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// typeName returns a string identifier for the generic type T.
func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
