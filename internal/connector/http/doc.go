// Package http provides the HTTP plumbing shared by REST source connectors.
// The kintone connector is built on it.
//
// Structure:
//
//	base.go       - Base struct that connectors embed
//	client.go     - HTTP client with rate limiting and retry
//	auth.go       - Authentication strategies (Cybozu password, API token, Basic, Bearer)
//	paginator.go  - Total-count offset pagination and the page iterator
package http
