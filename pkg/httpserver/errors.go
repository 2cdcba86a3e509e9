package httpserver

import "errors"

var (
	// ErrStart wraps listener startup failures.
	ErrStart = errors.New("failed to start HTTP server")
	// ErrShutdown wraps graceful-shutdown failures.
	ErrShutdown = errors.New("failed to shutdown HTTP server gracefully")
)
