package tracker

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationKind represents the kind of mutation submitted to the control plane.
type OperationKind string

const (
	// OperationCreate indicates a new resource is being created.
	OperationCreate OperationKind = "create"

	// OperationUpdate indicates an existing resource is being updated.
	OperationUpdate OperationKind = "update"

	// OperationDelete indicates an existing resource is being deleted.
	OperationDelete OperationKind = "delete"

	// OperationUnknown indicates the control plane reported an operation
	// kind the tracker does not recognize.
	OperationUnknown OperationKind = "unknown"
)

// Validate checks if the operation kind is valid.
func (o OperationKind) Validate() error {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete, OperationUnknown:
		return nil
	default:
		return fmt.Errorf("invalid operation kind: %s", o)
	}
}

// MutationStatus represents the progress status of a tracked mutation.
type MutationStatus string

const (
	// StatusPending indicates the mutation has been accepted by the control
	// plane but work has not started yet.
	StatusPending MutationStatus = "pending"

	// StatusInProgress indicates the control plane is working on the mutation.
	StatusInProgress MutationStatus = "in_progress"

	// StatusSucceeded indicates the mutation reached its desired state.
	StatusSucceeded MutationStatus = "succeeded"

	// StatusFailed indicates the mutation failed.
	StatusFailed MutationStatus = "failed"

	// StatusCancelComplete indicates the control plane cancelled the mutation
	// and the cancellation has finished.
	StatusCancelComplete MutationStatus = "cancel_complete"
)

// IsTerminal returns true if the status represents a final state. A mutation
// in a terminal state is never polled again.
func (s MutationStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelComplete
}

// Validate checks if the mutation status is valid.
func (s MutationStatus) Validate() error {
	switch s {
	case StatusPending, StatusInProgress, StatusSucceeded, StatusFailed, StatusCancelComplete:
		return nil
	default:
		return fmt.Errorf("invalid mutation status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s MutationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *MutationStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = MutationStatus(str)
	return s.Validate()
}

// MutationState is the immutable snapshot of one in-flight or completed
// mutation. The polling pass derives a new value from the previous one on
// every status response; values are compared structurally to decide whether
// subscribers need to hear about the change.
type MutationState struct {
	// ConnectionID identifies which remote endpoint and credential scope the
	// mutation belongs to. Mutations across different connections are never
	// conflated, even for the same resource identifier.
	ConnectionID string `json:"connection_id"`

	// Token is the opaque handle returned by the control plane at submission
	// time. It is the sole key used to re-query progress and is immutable.
	Token string `json:"token"`

	// Operation is the kind of mutation that was submitted.
	Operation OperationKind `json:"operation"`

	// ResourceType identifies the resource schema being mutated.
	ResourceType string `json:"resource_type"`

	// ResourceID is the control-plane identifier of the resource. It may be
	// empty until the first successful poll (a create does not know its
	// identifier up front) and, once set, never reverts to empty.
	ResourceID string `json:"resource_id,omitempty"`

	// Status is the last observed progress status.
	Status MutationStatus `json:"status"`

	// Message is the human-readable detail from the last poll, if any.
	Message string `json:"message,omitempty"`

	// StartedAt is when the mutation was submitted. Telemetry uses it to
	// compute elapsed duration at terminal states.
	StartedAt time.Time `json:"started_at"`
}

// Equal reports whether two states are structurally equal.
func (s MutationState) Equal(other MutationState) bool {
	return s.ConnectionID == other.ConnectionID &&
		s.Token == other.Token &&
		s.Operation == other.Operation &&
		s.ResourceType == other.ResourceType &&
		s.ResourceID == other.ResourceID &&
		s.Status == other.Status &&
		s.Message == other.Message &&
		s.StartedAt.Equal(other.StartedAt)
}

// Advance derives the next state from a progress descriptor. The token,
// operation, resource type, connection and start time are carried over
// unchanged; status, resource identifier and message come from the control
// plane. A non-empty resource identifier is never overwritten by an empty one.
func (s MutationState) Advance(d ProgressDescriptor) MutationState {
	next := s
	next.Status = d.Status
	next.Message = d.Message
	if d.ResourceID != "" {
		next.ResourceID = d.ResourceID
	}
	return next
}

// Elapsed returns the duration since the mutation was submitted.
func (s MutationState) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}
