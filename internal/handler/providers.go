package handler

import (
	"net/http"

	"github.com/BlackMission/credlink/internal/oauthflow"
)

type providersResponse struct {
	Providers []string `json:"providers"`
}

// Providers lists the OAuth providers a user is walked through, in order.
func Providers(orch *oauthflow.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, providersResponse{Providers: orch.Chain()})
	}
}
