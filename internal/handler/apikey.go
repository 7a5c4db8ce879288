package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/apikey"
	"github.com/BlackMission/credlink/internal/domain"
)

const (
	msgKeyNotFound = "API Key not found."
	msgKeyRequired = "API key is required."
	msgKeyDeleted  = "API Key deleted successfully"

	// closeWindowHTML is served after a key is saved from the popup form.
	closeWindowHTML = "<script>window.close();</script>"

	maxBodyBytes = 64 << 10
)

// APIKeyStatus handles GET /get-api-key.
func APIKeyStatus(keys *apikey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		status, err := keys.Status(r.Context(), s.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, msgKeyNotFound)
			return
		}
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

// SaveAPIKey handles POST /save-api-key. The key is read from a JSON body
// or from a form post of the key-entry page.
func SaveAPIKey(keys *apikey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		key, err := readAPIKey(w, r)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, msgKeyRequired)
			return
		}

		err = keys.Save(r.Context(), s.UserID, key)
		if errors.Is(err, domain.ErrValidation) {
			writeMessage(w, http.StatusBadRequest, msgKeyRequired)
			return
		}
		if err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, closeWindowHTML)
	}
}

// DeleteAPIKey handles POST /delete-api-key. OAuth tokens are kept.
func DeleteAPIKey(keys *apikey.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		if err := keys.Delete(r.Context(), s.UserID); err != nil {
			writeError(w, logger, err)
			return
		}

		writeMessage(w, http.StatusOK, msgKeyDeleted)
	}
}

func readAPIKey(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			APIKey string `json:"apiKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", err
		}
		return body.APIKey, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.PostForm.Get("apiKey"), nil
}
