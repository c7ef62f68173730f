package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func chain(logger *zap.Logger, h http.HandlerFunc) http.Handler {
	return CorrelationID(logger)(RequestLogger(logger)(h))
}

func TestCorrelationID_HandlerLogsCarryID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := chain(logger, func(w http.ResponseWriter, r *http.Request) {
		LoggerFrom(r.Context(), logger).Warn("render failed")
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/previews/x", nil)
	req.Header.Set(HeaderCorrelationID, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(HeaderCorrelationID))
	entries := logs.FilterField(zap.String("correlation_id", "req-42")).All()
	require.Len(t, entries, 2, "handler line and request line both carry the id")
	assert.Equal(t, "render failed", entries[0].Message)
	assert.Equal(t, "http request", entries[1].Message)
}

func TestCorrelationID_RejectsUnsafeHeader(t *testing.T) {
	tests := []struct {
		name, header string
	}{
		{"empty", ""},
		{"newline", "abc\ninjected"},
		{"space", "abc def"},
		{"too long", strings.Repeat("a", maxCorrelationIDLen+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := CorrelationID(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetCorrelationID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderCorrelationID, tc.header)
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.NotEqual(t, tc.header, seen)
			assert.Len(t, seen, 36, "replaced by a UUID")
		})
	}
}

func TestLoggerFrom_FallbackOutsideRequest(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, LoggerFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context(), fallback))
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   zapcore.Level
	}{
		{"/healthz", http.StatusOK, zapcore.DebugLevel},
		{"/readyz", http.StatusServiceUnavailable, zapcore.DebugLevel},
		{"/metrics", http.StatusOK, zapcore.DebugLevel},
		{"/api/v1/deliveries", http.StatusOK, zapcore.InfoLevel},
		{"/api/v1/deliveries", http.StatusInternalServerError, zapcore.ErrorLevel},
	}
	for _, tc := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)
		h := chain(logger, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("ok"))
		})
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))

		entries := logs.All()
		require.Len(t, entries, 1, tc.path)
		assert.Equal(t, tc.want, entries[0].Level, "%s %d", tc.path, tc.status)
		assert.Equal(t, int64(tc.status), entries[0].ContextMap()["status"])
		assert.Equal(t, int64(2), entries[0].ContextMap()["bytes"])
	}
}
