package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/oauthflow"
)

// Callback handles GET /oauth/callback/{provider} and
// GET /oauth/callback/{provider}/{userId}.
// The state token is the only identity carrier here; no session is required.
func Callback(orch *oauthflow.Orchestrator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		stateToken := q.Get("state")
		if stateToken == "" {
			writeMessage(w, http.StatusBadRequest, "missing state parameter")
			return
		}

		location, err := orch.Callback(r.Context(), oauthflow.CallbackRequest{
			Provider:   r.PathValue("provider"),
			Code:       q.Get("code"),
			State:      stateToken,
			Error:      q.Get("error"),
			PathUserID: r.PathValue("userId"),
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}

		http.Redirect(w, r, location, http.StatusFound)
	}
}
