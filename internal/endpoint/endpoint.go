// Package endpoint defines the core interfaces that UCL connectors implement.
//
// Architecture:
//
//	Endpoint        - Base contract (ID, Validate, Capabilities, Descriptor)
//	SourceEndpoint  - Read data (ListDatasets, GetSchema, Read)
//	CountCapable    - Cheap total-count probe for a dataset
//	SnapshotReader  - Schema and records from a single discovery
//
// All endpoints must implement the base Endpoint interface. Connectors then
// compose additional interfaces based on their capabilities.
package endpoint

import "context"

// Endpoint is the base contract that ALL UCL connectors must implement.
type Endpoint interface {
	// ID returns the unique template identifier (e.g., "http.kintone").
	ID() string

	// ValidateConfig tests configuration validity and connectivity.
	ValidateConfig(ctx context.Context, config map[string]any) (*ValidationResult, error)

	// GetCapabilities returns the set of supported operations.
	GetCapabilities() *Capabilities

	// GetDescriptor returns metadata about this endpoint type.
	GetDescriptor() *Descriptor

	// Close releases any resources held by the endpoint.
	Close() error
}

// SourceEndpoint can read data from an external system.
type SourceEndpoint interface {
	Endpoint

	// ListDatasets returns available datasets/tables/collections.
	ListDatasets(ctx context.Context) ([]*Dataset, error)

	// GetSchema returns the schema for a specific dataset.
	GetSchema(ctx context.Context, datasetID string) (*Schema, error)

	// Read streams records from a dataset.
	// Returns an Iterator that must be closed after use.
	Read(ctx context.Context, req *ReadRequest) (Iterator[Record], error)
}

// CountCapable sources can report a dataset's record count without reading it.
type CountCapable interface {
	CountRecords(ctx context.Context, datasetID string) (int64, error)
}

// SnapshotReader sources return a dataset's schema together with an
// iterator whose records are shaped by that same schema.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, req *ReadRequest) (*Schema, Iterator[Record], error)
}
