// Package shield provides the HTTP middleware stack of the docforge service:
// security headers, body limits, request tracing, and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the standard middleware stack, ordered:
// HeadToGet → SecurityHeaders → MaxBody → TraceID.
func DefaultStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(8 << 20),
		TraceID,
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
