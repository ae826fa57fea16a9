// Package logging is the connector's structured logger. Sensitive attributes
// such as passwords and tenant secrets never reach the output.
package logging

import "context"

// Logger takes a message and alternating key/value attributes:
//
//	logger.Info(ctx, "page sent", "page", n, "users", len(page))
//
// ctx is handed to the slog handler unchanged.
type Logger interface {
	// Debug is for request and response bodies; they are redacted first.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	// Error reports a failure the caller could not recover from.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that adds args to every entry, e.g. a run id.
	With(args ...any) Logger
}
