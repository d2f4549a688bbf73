package http

import (
	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// =============================================================================
// BASE HTTP ENDPOINT
// Provides common HTTP functionality for semantic connectors.
// =============================================================================

// Base provides common HTTP endpoint functionality.
// Embed this in concrete connectors.
type Base struct {
	// Client is the HTTP client for making requests.
	Client *Client

	// EndpointID is the unique identifier for this endpoint.
	EndpointID string

	// EndpointName is the display name.
	EndpointName string

	// Vendor is the vendor name (e.g., "Cybozu").
	Vendor string
}

// NewBase creates a new HTTP base with the given configuration.
func NewBase(id, name, vendor string, config *ClientConfig) *Base {
	return &Base{
		Client:       NewClient(config),
		EndpointID:   id,
		EndpointName: name,
		Vendor:       vendor,
	}
}

// ID returns the endpoint identifier.
func (b *Base) ID() string {
	return b.EndpointID
}

// Close closes the HTTP client.
func (b *Base) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// GetCapabilities returns read-only full refresh capabilities.
// Override in concrete implementations.
func (b *Base) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:     true,
		SupportsPreview:  true,
		SupportsMetadata: true,
		DefaultFetchSize: 100,
	}
}

// GetDescriptor returns the endpoint descriptor.
// Override in concrete implementations.
func (b *Base) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:     b.EndpointID,
		Family: "http.rest",
		Title:  b.EndpointName,
		Vendor: b.Vendor,
	}
}
