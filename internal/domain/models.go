package domain

import "time"

// Provider names. Each OAuth provider maps to one token field of a Connection.
const (
	ProviderGitHub = "github"
	ProviderMonday = "monday"
)

// Connection is the per-user record of third-party credentials.
// An empty string means the credential is absent.
type Connection struct {
	UserID      string `json:"userId"`
	APIKey      string `json:"apiKey,omitempty"`
	GitHubToken string `json:"githubToken,omitempty"`
	MondayToken string `json:"mondayToken,omitempty"`
}

// Field names a single credential slot of a Connection.
type Field string

const (
	FieldAPIKey      Field = "apiKey"
	FieldGitHubToken Field = "githubToken"
	FieldMondayToken Field = "mondayToken"
)

// TokenField returns the field holding the OAuth token for provider.
func TokenField(provider string) (Field, bool) {
	switch provider {
	case ProviderGitHub:
		return FieldGitHubToken, true
	case ProviderMonday:
		return FieldMondayToken, true
	}
	return "", false
}

// ConnectionPatch is a partial update. Nil fields are left untouched.
type ConnectionPatch struct {
	APIKey      *string
	GitHubToken *string
	MondayToken *string
}

// PatchField builds a patch that sets a single field.
func PatchField(f Field, value string) ConnectionPatch {
	var p ConnectionPatch
	switch f {
	case FieldAPIKey:
		p.APIKey = &value
	case FieldGitHubToken:
		p.GitHubToken = &value
	case FieldMondayToken:
		p.MondayToken = &value
	}
	return p
}

// Merge returns a copy of c with every field set in p applied on top.
func (c Connection) Merge(p ConnectionPatch) Connection {
	if p.APIKey != nil {
		c.APIKey = *p.APIKey
	}
	if p.GitHubToken != nil {
		c.GitHubToken = *p.GitHubToken
	}
	if p.MondayToken != nil {
		c.MondayToken = *p.MondayToken
	}
	return c
}

// Without returns a copy of c with field f cleared.
func (c Connection) Without(f Field) Connection {
	switch f {
	case FieldAPIKey:
		c.APIKey = ""
	case FieldGitHubToken:
		c.GitHubToken = ""
	case FieldMondayToken:
		c.MondayToken = ""
	}
	return c
}

// Token returns the stored OAuth token for provider, or "".
func (c Connection) Token(provider string) string {
	switch provider {
	case ProviderGitHub:
		return c.GitHubToken
	case ProviderMonday:
		return c.MondayToken
	}
	return ""
}

// IsEmpty reports whether no credential is set.
func (c Connection) IsEmpty() bool {
	return c.APIKey == "" && c.GitHubToken == "" && c.MondayToken == ""
}

// StatePayload is the data embedded in the HMAC-signed OAuth state token.
type StatePayload struct {
	UserID    string            `json:"uid"`
	BackToURL string            `json:"bck"`
	Provider  string            `json:"prv"`
	Extra     map[string]string `json:"ext,omitempty"`
	Nonce     string            `json:"nce"`
	ExpiresAt time.Time         `json:"exp"`
}
