package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/oauthflow"
)

// Authorize handles GET /authorize.
// It sends the user to the first provider that is not linked yet, or back to
// their backToUrl when everything is linked. The destination comes from the
// session token; a backToUrl query parameter is accepted when the token has
// none.
func Authorize(orch *oauthflow.Orchestrator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		backTo := s.BackToURL
		if backTo == "" {
			backTo = r.URL.Query().Get("backToUrl")
		}
		if backTo == "" {
			writeMessage(w, http.StatusBadRequest, "missing backToUrl")
			return
		}

		location, err := orch.Start(r.Context(), s.UserID, backTo)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		http.Redirect(w, r, location, http.StatusFound)
	}
}
