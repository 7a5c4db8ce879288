package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/connection"
	"github.com/BlackMission/credlink/internal/oauthflow"
)

const msgUnlinked = "Account unlinked successfully"

type connectionStatusResponse struct {
	UserID    string                     `json:"userId"`
	Providers []oauthflow.ProviderStatus `json:"providers"`
	// Complete is true once every provider in the chain is linked.
	Complete bool `json:"complete"`
}

// ConnectionStatus handles GET /connection/status.
func ConnectionStatus(orch *oauthflow.Orchestrator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		providers, err := orch.Status(r.Context(), s.UserID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		complete := true
		for _, p := range providers {
			complete = complete && p.Connected
		}

		writeJSON(w, http.StatusOK, connectionStatusResponse{
			UserID:    s.UserID,
			Providers: providers,
			Complete:  complete,
		})
	}
}

// Unlink handles POST /unlink and drops every stored credential of the user.
func Unlink(connections *connection.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		if err := connections.Delete(r.Context(), s.UserID); err != nil {
			writeError(w, logger, err)
			return
		}

		writeMessage(w, http.StatusOK, msgUnlinked)
	}
}
