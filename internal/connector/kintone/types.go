package kintone

import (
	nethttp "net/http"
	"strings"

	"github.com/nucleus/ucl-kintone/internal/observability"
)

// Authentication options accepted in Config.AuthType.Option.
const (
	AuthUsernamePassword = "username_password"
	AuthAPIToken         = "api_token"
)

// DefaultPageSize is the number of records requested per listing call.
const DefaultPageSize = 500

// MaxPageSize is the kintone API hard limit for one records.json call.
const MaxPageSize = 500

// DefaultLang is the language used for form field labels.
const DefaultLang = "ja"

// AuthType selects and carries credentials.
type AuthType struct {
	Option   string `json:"option" yaml:"option"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	APIToken string `json:"apiToken,omitempty" yaml:"apiToken,omitempty"`
}

// Config holds kintone connection configuration.
type Config struct {
	// Domain is the workspace URL (e.g., https://example.cybozu.com).
	// A bare host is accepted and gets an https scheme.
	Domain string `json:"domain" yaml:"domain"`

	// AppIDs lists the apps to extract, one stream each.
	AppIDs []string `json:"appIds" yaml:"appIds"`

	// AuthType holds the authentication option and credentials.
	AuthType AuthType `json:"authType" yaml:"authType"`

	// IncludeLabel keys schema entries and records by field label.
	IncludeLabel bool `json:"includeLabel,omitempty" yaml:"includeLabel,omitempty"`

	// GuestSpaceID routes every call through /k/guest/{id}/v1.
	GuestSpaceID string `json:"guestSpaceId,omitempty" yaml:"guestSpaceId,omitempty"`

	// Query is an optional condition placed before the paging directive.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	// PageSize is the number of records per listing call.
	PageSize int `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`

	// Lang is the label language requested from the form endpoint.
	Lang string `json:"lang,omitempty" yaml:"lang,omitempty"`

	// RequestsPerSecond caps the client request rate (0 keeps the client default).
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`

	// MaxRetries for 429/5xx answers. 0 keeps the client default and a
	// negative value disables retries.
	MaxRetries int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`

	// Transport overrides the HTTP transport (stubs in tests).
	Transport nethttp.RoundTripper `json:"-" yaml:"-"`

	// Metrics receives page and record events. Nil means no metrics.
	Metrics observability.Metrics `json:"-" yaml:"-"`
}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	c.Domain = normalizeDomain(c.Domain)
	if c.Domain == "" {
		return &ValidationError{Field: "domain", Message: "required"}
	}

	ids := make([]string, 0, len(c.AppIDs))
	for _, id := range c.AppIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return &ValidationError{Field: "appIds", Message: "at least one app id is required"}
	}
	c.AppIDs = ids

	if c.AuthType.Option == "" {
		c.AuthType.Option = AuthUsernamePassword
	}
	switch c.AuthType.Option {
	case AuthUsernamePassword:
		if c.AuthType.Username == "" || c.AuthType.Password == "" {
			return &ValidationError{Field: "authType", Message: "username and password are required"}
		}
	case AuthAPIToken:
		if strings.TrimSpace(c.AuthType.APIToken) == "" {
			return &ValidationError{Field: "authType.apiToken", Message: "required"}
		}
	default:
		return &ValidationError{Field: "authType.option", Message: "unsupported option " + c.AuthType.Option}
	}

	c.GuestSpaceID = strings.TrimSpace(c.GuestSpaceID)
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.Lang == "" {
		c.Lang = DefaultLang
	}
	return nil
}

func normalizeDomain(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// =============================================================================
// KINTONE API RESPONSE TYPES
// =============================================================================

// FieldProperty is one form field definition from form/fields.json.
type FieldProperty struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Label   string `json:"label"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// IsDisabled reports whether the field is explicitly flagged disabled.
// Fields that carry no flag are enabled.
func (p FieldProperty) IsDisabled() bool {
	return p.Enabled != nil && !*p.Enabled
}

type formFieldsResponse struct {
	Properties map[string]FieldProperty `json:"properties"`
	Revision   string                   `json:"revision,omitempty"`
}

// FieldValue is one field of a record envelope.
type FieldValue struct {
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

// RawRecord is one record as returned by records.json, keyed by field code.
type RawRecord map[string]FieldValue

type recordsResponse struct {
	Records []RawRecord `json:"records"`
}

// App is one entry of apps.json.
type App struct {
	AppID   string  `json:"appId"`
	Code    string  `json:"code,omitempty"`
	Name    string  `json:"name"`
	SpaceID *string `json:"spaceId"`
}

type appsResponse struct {
	Apps []App `json:"apps"`
}
