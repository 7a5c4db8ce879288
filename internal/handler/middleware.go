package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/session"
)

// RequireSession rejects requests without a valid monday.com session token
// and stores the session on the request context.
func RequireSession(verifier *session.Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := verifier.Verify(session.TokenFromRequest(r))
			if err != nil {
				logger.Debug("session rejected", zap.String("path", r.URL.Path), zap.Error(err))
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// currentSession fetches the session set by RequireSession. A missing
// session means the route was wired without the middleware.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := session.FromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return s, true
}
