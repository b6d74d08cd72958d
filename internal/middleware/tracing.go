package middleware

import (
	"net/http"
	"time"

	"github.com/R3E-Network/canvas/internal/httputil"
	"github.com/R3E-Network/canvas/internal/logging"
)

// TracingMiddleware stamps every request with a fresh request id, which also
// serves as the logging trace id, and logs the completed request.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	if logger == nil {
		logger = logging.NewDefault("http")
	}
	return &TracingMiddleware{
		logger: logger,
	}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.NewTraceID()
		ctx := logging.WithTraceID(r.Context(), requestID)
		w.Header().Set(httputil.RequestIDHeader, requestID)

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
