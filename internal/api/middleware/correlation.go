package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderCorrelationID carries the request trace id in both directions.
const HeaderCorrelationID = "X-Correlation-ID"

// maxCorrelationIDLen caps caller-supplied ids before they reach the logs.
const maxCorrelationIDLen = 128

type contextKey int

const (
	correlationIDKey contextKey = iota
	loggerKey
)

// CorrelationID accepts the caller's X-Correlation-ID or mints a UUID, echoes
// it on the response and stores it on the context together with a logger
// that carries it. Handlers log through LoggerFrom so every line of an ops
// request shares the id.
func CorrelationID(base *zap.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderCorrelationID)
			if !validCorrelationID(id) {
				id = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), correlationIDKey, id)
			ctx = context.WithValue(ctx, loggerKey, base.With(zap.String("correlation_id", id)))
			w.Header().Set(HeaderCorrelationID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID returns the id stored by CorrelationID, or "".
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// LoggerFrom returns the request-scoped logger, or fallback outside a request.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return fallback
}

// validCorrelationID admits short printable ASCII ids only.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
