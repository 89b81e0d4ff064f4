package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/HijjazD/CryptoVote/internal/common"
)

type ctxKey string

const identityIDKey ctxKey = "identityID"

// IdentityID returns the identity id injected by RequireSession.
func IdentityID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityIDKey).(string)
	return id, ok && id != ""
}

// RequireSession rejects requests without a valid session cookie before
// next runs.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.sessions.Verify(cookieValue(r, sessionCookieName))
		if err != nil {
			s.fail(w, r, "session", common.ErrorUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs each request and records it under route.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		s.logger.Info(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error(r.Context(), "handler panic", "panic", v, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, failureResponse{Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
