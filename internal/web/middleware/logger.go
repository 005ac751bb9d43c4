package middleware

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

func WithLogger(log logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logr.NewContext(r.Context(), log)))
		})
	}
}

// WithRequestID tags the request logger with an id, reusing the caller's
// X-Request-Id when present, and logs each request once it completes.
func WithRequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			log := logr.FromContextOrDiscard(r.Context()).WithValues("request", id)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(logr.NewContext(r.Context(), log)))

			log.V(1).Info("served", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
