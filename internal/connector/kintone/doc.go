// Package kintone implements a read-only source connector for kintone apps.
//
// Each configured app is one stream. A stream read discovers the app's form
// fields once, pages through its records with a client-side offset, and
// flattens every record envelope into a plain field map, optionally keyed by
// field label instead of field code.
//
// Structure:
//
//	types.go      - Config, validation and API response types
//	errors.go     - Error taxonomy and remote error code catalog
//	mapping.go    - Field type tag to JSON-Schema fragment table
//	schema.go     - Form field discovery and the ordered app schema
//	records.go    - Offset paged record listing and count probe
//	projector.go  - Envelope flattening and label remapping
//	stream.go     - Stream naming, schema document and record reads
//	check.go      - Connection check
//	kintone.go    - endpoint.SourceEndpoint implementation
//	register.go   - Registry factory for "http.kintone"
//	stub.go       - In-process API stub for tests
package kintone
