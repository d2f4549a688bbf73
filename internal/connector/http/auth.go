package http

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// =============================================================================
// AUTHENTICATION STRATEGIES
// =============================================================================

// AuthConfig represents authentication configuration.
type AuthConfig interface {
	Apply(req *http.Request)
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (a NoAuth) Apply(req *http.Request) {}

// BasicAuth uses HTTP Basic Authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds Basic auth header to the request.
func (a BasicAuth) Apply(req *http.Request) {
	if a.Username == "" && a.Password == "" {
		return
	}
	req.Header.Set("Authorization", "Basic "+encodeCredentials(a.Username, a.Password))
}

// BearerToken uses Bearer token authentication.
type BearerToken struct {
	Token string
}

// Apply adds Bearer token header to the request.
func (a BearerToken) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

// HeaderCybozuAuthorization carries base64(login:password) for kintone password auth.
const HeaderCybozuAuthorization = "X-Cybozu-Authorization"

// HeaderCybozuAPIToken carries one or more comma separated app API tokens.
const HeaderCybozuAPIToken = "X-Cybozu-API-Token"

// CybozuPassword uses kintone password authentication.
// Unlike BasicAuth the credentials go in a dedicated header without a scheme prefix.
type CybozuPassword struct {
	Username string
	Password string
}

// Apply adds the X-Cybozu-Authorization header to the request.
func (a CybozuPassword) Apply(req *http.Request) {
	if a.Username == "" || a.Password == "" {
		return
	}
	req.Header.Set(HeaderCybozuAuthorization, encodeCredentials(a.Username, a.Password))
}

// CybozuAPIToken uses kintone API token authentication.
type CybozuAPIToken struct {
	Tokens []string
}

// Apply adds the X-Cybozu-API-Token header to the request.
func (a CybozuAPIToken) Apply(req *http.Request) {
	tokens := make([]string, 0, len(a.Tokens))
	for _, t := range a.Tokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return
	}
	req.Header.Set(HeaderCybozuAPIToken, strings.Join(tokens, ","))
}

func encodeCredentials(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
