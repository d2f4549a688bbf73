package endpoint

// Record represents a single data record as key-value pairs.
type Record = map[string]any

// Iterator provides streaming access to records.
type Iterator[T any] interface {
	// Next advances to the next record. Returns false when done or on error.
	Next() bool

	// Value returns the current record. Only valid after Next() returns true.
	Value() T

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources. Must be called when done.
	Close() error
}

// --- Validation Types ---

type ValidationResult struct {
	Valid           bool
	Message         string
	Code            string
	Retryable       bool
	DetectedVersion string
}

// --- Capabilities ---

type Capabilities struct {
	SupportsFull        bool
	SupportsIncremental bool
	SupportsCountProbe  bool
	SupportsPreview     bool
	SupportsMetadata    bool
	SupportsWrite       bool

	DefaultFetchSize int
}

// --- Dataset Types ---

type Dataset struct {
	ID                  string
	Name                string
	Kind                string // "table", "view", "stream", "app"
	SupportsIncremental bool
	IngestionStrategy   string // "full", "scd1", "cdc"
	PrimaryKeys         []string
	Properties          map[string]any
}

// --- Schema Types ---

type Schema struct {
	Fields []*FieldDefinition
}

type FieldDefinition struct {
	Name     string
	DataType string
	Nullable bool
	Comment  string
	Position int
}

// --- Read Types ---

type ReadRequest struct {
	DatasetID string
	Limit     int64
}
