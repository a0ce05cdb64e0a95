package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/finsightai/finsight/pkg/idx"
)

const RequestIDHeader = "X-Request-ID"

// HTTPMiddleware tags each request with an id, stores a request-scoped
// logger in the context and logs one line when the request completes.
// Panics are logged and turned into a 500.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = idx.New().String()
			}
			w.Header().Set(RequestIDHeader, reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic serving request", slog.Any("panic", rec))
					if !rw.wroteHeader {
						rw.WriteHeader(http.StatusInternalServerError)
					}
				}
				logger.Info("http_request",
					"status", rw.status,
					"bytes", rw.bytes,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(rw, r.WithContext(WithContext(r.Context(), logger)))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status      int
	bytes       int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Status exposes the recorded status code to outer middleware.
func (rw *responseWriter) Status() int { return rw.status }
