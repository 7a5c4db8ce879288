package handler

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

var keyFormTmpl = template.Must(template.New("keyform").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Connect API key</title>
</head>
<body>
<form method="POST" action="/save-api-key?token={{.Token}}">
<label for="apiKey">API key</label>
<input id="apiKey" name="apiKey" type="password" autocomplete="off" required>
<button type="submit">Save</button>
</form>
</body>
</html>
`))

// KeyEntryForm handles GET /monday/authorize. It renders the page monday.com
// opens so the user can paste an API key. The session token is carried to the
// save endpoint in the form action.
func KeyEntryForm(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := currentSession(w, r)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := keyFormTmpl.Execute(w, struct{ Token string }{Token: s.Token}); err != nil {
			logger.Error("render key form", zap.Error(err))
		}
	}
}
