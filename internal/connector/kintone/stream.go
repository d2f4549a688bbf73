package kintone

import (
	"context"
	"fmt"
	"strings"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// JSONSchemaDraft07 is the $schema of every produced stream schema.
const JSONSchemaDraft07 = "http://json-schema.org/draft-07/schema#"

// StreamName returns the stream name of an app.
func StreamName(guestSpaceID, appID string) string {
	if guestSpaceID != "" {
		return fmt.Sprintf("GUEST_SPACE_%s_APP_%s", guestSpaceID, appID)
	}
	return "PUBLIC_SPACE_APP_" + appID
}

// resolveAppID accepts either a bare app id or a stream name.
func resolveAppID(datasetID string) string {
	if i := strings.LastIndex(datasetID, "_APP_"); i >= 0 {
		return datasetID[i+len("_APP_"):]
	}
	return datasetID
}

// StreamSchema is the JSON-Schema document describing one stream.
type StreamSchema struct {
	Schema               string             `json:"$schema"`
	Type                 string             `json:"type"`
	AdditionalProperties bool               `json:"additionalProperties"`
	Properties           *ApplicationSchema `json:"properties"`
}

// NewStreamSchema wraps an app schema in the stream document envelope.
func NewStreamSchema(properties *ApplicationSchema) *StreamSchema {
	return &StreamSchema{
		Schema:               JSONSchemaDraft07,
		Type:                 "object",
		AdditionalProperties: true,
		Properties:           properties,
	}
}

// GetStreamSchema discovers the app schema and returns its stream document.
func (c *Connector) GetStreamSchema(ctx context.Context, appID string) (*StreamSchema, error) {
	schema, err := c.DiscoverSchema(ctx, resolveAppID(appID))
	if err != nil {
		return nil, err
	}
	return NewStreamSchema(schema), nil
}

// ReadRecords streams the app's flat records. Label mode discovers the
// schema first to build the code-to-label map.
func (c *Connector) ReadRecords(ctx context.Context, appID string) (endpoint.Iterator[endpoint.Record], error) {
	return c.readRecords(ctx, resolveAppID(appID), 0)
}

func (c *Connector) readRecords(ctx context.Context, appID string, limit int64) (endpoint.Iterator[endpoint.Record], error) {
	var schema *ApplicationSchema
	if c.config.IncludeLabel {
		var err error
		if schema, err = c.DiscoverSchema(ctx, appID); err != nil {
			return nil, err
		}
	}
	return c.recordsFor(ctx, appID, schema, limit), nil
}

// recordsFor projects records with schema's labels in label mode and by
// field code otherwise.
func (c *Connector) recordsFor(ctx context.Context, appID string, schema *ApplicationSchema, limit int64) endpoint.Iterator[endpoint.Record] {
	var labels map[string]string
	if c.config.IncludeLabel && schema != nil {
		labels = schema.LabelMap()
	}
	return newRecordIterator(appID, c.FetchAllRecords(ctx, appID), labels, limit)
}
