// Package logging passes request-scoped slog loggers through contexts so
// service code logs with the request id the middleware stamped.
package logging

import (
	"context"
	"log/slog"
)

// loggerKey is private to the package, so no other context value can collide
// with it.
type loggerKey struct{}

// ContextWithLogger attaches logger to ctx. A nil ctx or logger leaves the
// context as it was.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil when none was. The
// caller picks the fallback; services default to their own logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger
}
