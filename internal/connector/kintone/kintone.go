package kintone

import (
	"context"
	"fmt"
	"strings"

	"github.com/nucleus/ucl-kintone/internal/connector/http"
	"github.com/nucleus/ucl-kintone/internal/endpoint"
	"github.com/nucleus/ucl-kintone/internal/observability"
)

// =============================================================================
// KINTONE CONNECTOR
// Implements endpoint.SourceEndpoint, endpoint.CountCapable and
// endpoint.SnapshotReader
// =============================================================================

// TemplateID is the registry id of the kintone source.
const TemplateID = "http.kintone"

// Ensure interface compliance
var (
	_ endpoint.SourceEndpoint = (*Connector)(nil)
	_ endpoint.CountCapable   = (*Connector)(nil)
	_ endpoint.SnapshotReader = (*Connector)(nil)
)

// Connector is the kintone source connector.
type Connector struct {
	*http.Base
	config  *Config
	types   TypeMapper
	metrics observability.Metrics
}

// New creates a connector with the given configuration.
func New(config *Config) (*Connector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpConfig := http.DefaultClientConfig()
	httpConfig.BaseURL = config.Domain
	httpConfig.Auth = authFor(config.AuthType)
	httpConfig.Transport = config.Transport
	if config.RequestsPerSecond > 0 {
		httpConfig.RateLimit = config.RequestsPerSecond
	}
	if config.MaxRetries != 0 {
		httpConfig.MaxRetries = config.MaxRetries
	}
	httpConfig.Headers["Accept"] = "application/json"

	return &Connector{
		Base:    http.NewBase(TemplateID, "kintone", "Cybozu", httpConfig),
		config:  config,
		types:   DefaultTypeTable(),
		metrics: observability.OrNop(config.Metrics),
	}, nil
}

func authFor(a AuthType) http.AuthConfig {
	if a.Option == AuthAPIToken {
		return http.CybozuAPIToken{Tokens: strings.Split(a.APIToken, ",")}
	}
	return http.CybozuPassword{Username: a.Username, Password: a.Password}
}

// Config returns the validated configuration.
func (c *Connector) Config() *Config {
	return c.config
}

// apiPath places a resource under the public or guest space API root.
func (c *Connector) apiPath(resource string) string {
	if c.config.GuestSpaceID != "" {
		return fmt.Sprintf("/k/guest/%s/v1/%s", c.config.GuestSpaceID, resource)
	}
	return "/k/v1/" + resource
}

// =============================================================================
// ENDPOINT INTERFACE
// =============================================================================

// ValidateConfig runs the connection check. A failed check is reported in
// the result, not as an error.
func (c *Connector) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	err := c.CheckConnection(ctx)
	if err == nil {
		return &endpoint.ValidationResult{Valid: true, Message: "Connection successful"}, nil
	}

	authErr, ok := err.(*AuthenticationError)
	if !ok {
		return nil, err
	}
	result := &endpoint.ValidationResult{
		Valid:   false,
		Message: authErr.Reason,
		Code:    "AUTHENTICATION",
	}
	switch authErr.Reason {
	case ReasonLimitExceeded:
		result.Code = "RATE_LIMITED"
		result.Retryable = true
	case ReasonSystemError:
		result.Code = "SYSTEM_ERROR"
		result.Retryable = true
	}
	return result, nil
}

// GetCapabilities returns kintone source capabilities.
func (c *Connector) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:       true,
		SupportsCountProbe: true,
		SupportsPreview:    true,
		SupportsMetadata:   true,
		DefaultFetchSize:   c.config.PageSize,
	}
}

// GetDescriptor returns the kintone endpoint descriptor.
func (c *Connector) GetDescriptor() *endpoint.Descriptor {
	authVisible := func(option string) *endpoint.VisibilityCondition {
		return &endpoint.VisibilityCondition{Field: "authType.option", Operator: "eq", Value: option}
	}
	return &endpoint.Descriptor{
		ID:          TemplateID,
		Family:      "http",
		Title:       "kintone",
		Vendor:      "Cybozu",
		Description: "kintone REST API connector for app records and form schemas",
		Categories:  []string{"database", "low-code"},
		Protocols:   []string{"https"},
		DocsURL:     "https://kintone.dev/en/docs/kintone/rest-api/",
		Fields: []*endpoint.FieldDescriptor{
			{Key: "domain", Label: "Domain", ValueType: "string", Required: true, Semantic: "HOST", Placeholder: "https://example.cybozu.com"},
			{Key: "appIds", Label: "App IDs", ValueType: "string", Required: true, Description: "Comma-separated app ids"},
			{Key: "authType.option", Label: "Authentication", ValueType: "string", Required: true, DefaultValue: AuthUsernamePassword, Options: []*endpoint.FieldOption{
				{Label: "Username and password", Value: AuthUsernamePassword},
				{Label: "API token", Value: AuthAPIToken},
			}},
			{Key: "authType.username", Label: "Username", ValueType: "string", Semantic: "GENERIC", VisibleWhen: authVisible(AuthUsernamePassword)},
			{Key: "authType.password", Label: "Password", ValueType: "password", Sensitive: true, Semantic: "PASSWORD", VisibleWhen: authVisible(AuthUsernamePassword)},
			{Key: "authType.apiToken", Label: "API Token", ValueType: "password", Sensitive: true, Semantic: "PASSWORD", VisibleWhen: authVisible(AuthAPIToken)},
			{Key: "includeLabel", Label: "Use field labels", ValueType: "boolean", Advanced: true},
			{Key: "guestSpaceId", Label: "Guest space ID", ValueType: "string", Advanced: true},
			{Key: "query", Label: "Record filter", ValueType: "string", Advanced: true, Description: "kintone query condition, without limit/offset"},
		},
		SampleConfig: map[string]any{
			"domain":   "https://example.cybozu.com",
			"appIds":   []string{"1"},
			"authType": map[string]any{"option": AuthUsernamePassword, "username": "user", "password": "secret"},
		},
	}
}

// =============================================================================
// SOURCE ENDPOINT
// =============================================================================

// ListDatasets returns one dataset per configured app.
func (c *Connector) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	datasets := make([]*endpoint.Dataset, 0, len(c.config.AppIDs))
	for _, appID := range c.config.AppIDs {
		datasets = append(datasets, &endpoint.Dataset{
			ID:                StreamName(c.config.GuestSpaceID, appID),
			Name:              StreamName(c.config.GuestSpaceID, appID),
			Kind:              "app",
			IngestionStrategy: "full",
			PrimaryKeys:       []string{FieldRecordID},
			Properties: map[string]any{
				"appId":        appID,
				"guestSpaceId": c.config.GuestSpaceID,
				"includeLabel": c.config.IncludeLabel,
			},
		})
	}
	return datasets, nil
}

// GetSchema returns the discovered fields of an app as a flat field list.
func (c *Connector) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	schema, err := c.DiscoverSchema(ctx, resolveAppID(datasetID))
	if err != nil {
		return nil, err
	}
	return fieldList(schema), nil
}

// Read streams the records of one app. req.Limit caps the record count.
func (c *Connector) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	return c.readRecords(ctx, resolveAppID(req.DatasetID), req.Limit)
}

// ReadSnapshot discovers the app's schema once and projects records with
// the label map of that schema.
func (c *Connector) ReadSnapshot(ctx context.Context, req *endpoint.ReadRequest) (*endpoint.Schema, endpoint.Iterator[endpoint.Record], error) {
	appID := resolveAppID(req.DatasetID)
	schema, err := c.DiscoverSchema(ctx, appID)
	if err != nil {
		return nil, nil, err
	}
	return fieldList(schema), c.recordsFor(ctx, appID, schema, req.Limit), nil
}

func fieldList(schema *ApplicationSchema) *endpoint.Schema {
	out := &endpoint.Schema{}
	for i, key := range schema.Keys() {
		f, _ := schema.Get(key)
		out.Fields = append(out.Fields, &endpoint.FieldDefinition{
			Name:     key,
			DataType: f.Type.Primary(),
			Nullable: f.Type.Nullable(),
			Comment:  f.DataLabel,
			Position: i + 1,
		})
	}
	return out
}
