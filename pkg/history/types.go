package history

import (
	"time"
)

// Record is one persisted terminal mutation outcome.
type Record struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// Token is the progress token of the mutation.
	Token string `json:"token"`

	// ConnectionID identifies the endpoint scope of the mutation.
	ConnectionID string `json:"connection_id"`

	// Operation is the kind of mutation (create, update, delete).
	Operation string `json:"operation"`

	// ResourceType identifies the resource schema.
	ResourceType string `json:"resource_type"`

	// ResourceID is the resource identifier, if the mutation reported one.
	ResourceID string `json:"resource_id,omitempty"`

	// Status is the terminal status the mutation reached.
	Status string `json:"status"`

	// Succeeded is true only for succeeded outcomes.
	Succeeded bool `json:"succeeded"`

	// Message is the last status detail the control plane reported.
	Message string `json:"message,omitempty"`

	// DurationMS is the elapsed time from submission to the terminal
	// outcome in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// StartedAt is when the mutation was submitted.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the terminal outcome was observed.
	CompletedAt time.Time `json:"completed_at"`
}

// Filter narrows List queries. Zero-valued fields are ignored.
type Filter struct {
	// ConnectionID restricts results to one connection.
	ConnectionID string

	// ResourceType restricts results to one resource type.
	ResourceType string

	// Status restricts results to one terminal status.
	Status string

	// Limit caps the number of returned records. Defaults to 100.
	Limit int

	// Offset skips the first N matching records.
	Offset int
}

// Summary aggregates outcome counts per terminal status.
type Summary struct {
	// Total is the number of recorded outcomes.
	Total int `json:"total"`

	// ByStatus counts records per terminal status.
	ByStatus map[string]int `json:"by_status"`
}
