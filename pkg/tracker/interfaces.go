package tracker

import (
	"context"
	"time"
)

// ProgressToken is the handle the control plane returns when it accepts a
// mutation. It is the sole key for re-querying progress.
type ProgressToken struct {
	// Token is the opaque token string.
	Token string `json:"token"`
}

// ProgressDescriptor is the control plane's answer to a status query.
type ProgressDescriptor struct {
	// Token is the progress token the descriptor belongs to.
	Token string `json:"token"`

	// Operation is the kind of mutation the token refers to.
	Operation OperationKind `json:"operation"`

	// ResourceType identifies the resource schema being mutated.
	ResourceType string `json:"resource_type"`

	// Status is the current progress status.
	Status MutationStatus `json:"status"`

	// ResourceID is the resource identifier, once the control plane has
	// assigned or confirmed it. May be empty for early create polls.
	ResourceID string `json:"resource_id,omitempty"`

	// Message is an optional human-readable status detail.
	Message string `json:"message,omitempty"`
}

// ControlPlaneClient is the remote capability the engine polls against. It is
// supplied by the embedding application; the tracker treats it as opaque and
// has no knowledge of any concrete resource schema.
//
// Status must return an error matching IsTokenNotFound when the control plane
// no longer recognizes the token; every other error is treated as transient.
type ControlPlaneClient interface {
	// Create submits a create mutation and returns its progress token.
	Create(ctx context.Context, resourceType, desiredState string) (ProgressToken, error)

	// Update submits an update mutation for an existing resource.
	Update(ctx context.Context, resourceType, resourceID, patch string) (ProgressToken, error)

	// Delete submits a delete mutation for an existing resource.
	Delete(ctx context.Context, resourceType, resourceID string) (ProgressToken, error)

	// Status queries the progress of a previously submitted mutation.
	Status(ctx context.Context, token string) (ProgressDescriptor, error)
}

// Subscriber receives state-change callbacks from the tracker. For a single
// token, OnStateChanged calls arrive in transition order and never
// concurrently; no ordering is guaranteed across tokens. Callbacks run on the
// polling goroutine, so implementations must not block.
type Subscriber interface {
	// OnStateChanged is invoked once per observed state transition, including
	// exactly one terminal transition per token.
	OnStateChanged(state MutationState)

	// OnPollingRoundComplete is invoked once after every polling pass,
	// regardless of how many items changed. UI layers use it to batch
	// refreshes instead of repainting per item.
	OnPollingRoundComplete()
}

// Subscription is a handle to a registered subscriber.
type Subscription interface {
	// Cancel removes the subscriber from the tracker. It is safe to call
	// more than once.
	Cancel()
}

// MutationOutcome is the record handed to the telemetry sink when a mutation
// reaches a terminal state or fails to submit.
type MutationOutcome struct {
	// Token is the progress token. Empty for submission failures, which never
	// received one.
	Token string `json:"token,omitempty"`

	// ConnectionID identifies the endpoint scope of the mutation.
	ConnectionID string `json:"connection_id"`

	// Operation is the kind of mutation.
	Operation OperationKind `json:"operation"`

	// ResourceType identifies the resource schema.
	ResourceType string `json:"resource_type"`

	// ResourceID is the resource identifier, if known.
	ResourceID string `json:"resource_id,omitempty"`

	// Status is the terminal status. Empty for submission failures, which
	// never produced a tracked state.
	Status MutationStatus `json:"status,omitempty"`

	// Succeeded is true only for StatusSucceeded outcomes.
	Succeeded bool `json:"succeeded"`

	// Duration is the elapsed time from submission to the terminal outcome.
	// Zero for submission failures.
	Duration time.Duration `json:"duration"`

	// Err is the classified error for failed outcomes, nil on success.
	Err error `json:"-"`
}

// TelemetrySink receives structured mutation outcomes for metrics emission.
// Implementations must be safe for concurrent use: submission failures are
// recorded on caller goroutines while poll outcomes arrive from the polling
// goroutine.
type TelemetrySink interface {
	// RecordOutcome records a terminal mutation outcome or submission failure.
	RecordOutcome(outcome MutationOutcome)

	// RecordPollRound records one completed polling pass.
	RecordPollRound(tracked int, duration time.Duration)
}

// SubmissionRequest describes a mutation about to be submitted, for guard
// evaluation.
type SubmissionRequest struct {
	// ConnectionID identifies the endpoint scope.
	ConnectionID string `json:"connection_id"`

	// Operation is the kind of mutation.
	Operation OperationKind `json:"operation"`

	// ResourceType identifies the resource schema.
	ResourceType string `json:"resource_type"`

	// ResourceID is the target resource, empty for creates.
	ResourceID string `json:"resource_id,omitempty"`
}

// SubmissionGuard can veto a mutation before it reaches the control plane.
// A non-nil error aborts the submission and is surfaced to the caller as a
// submission failure.
type SubmissionGuard interface {
	// Authorize returns nil if the submission may proceed.
	Authorize(ctx context.Context, req SubmissionRequest) error
}
