package policy

import (
	"time"

	"github.com/opwatch/opwatch/pkg/tracker"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block a submission.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block a submission.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never be bypassed.
	SeverityCritical Severity = "critical"
)

// blocking reports whether a severity vetoes the submission.
func (s Severity) blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// ResourceType is the resource type of the offending submission.
	ResourceType string `json:"resource_type,omitempty"`

	// ResourceID is the target resource, if the submission named one.
	ResourceID string `json:"resource_id,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Decision represents the result of evaluating a submission against all
// enabled policies.
type Decision struct {
	// Allowed indicates if the submission may proceed. A submission is
	// blocked by any error or critical violation.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the submission,
	// such as a policy that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the decision was made.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the document handed to Rego for evaluation.
type Input struct {
	// Request is the submission under evaluation.
	Request *tracker.SubmissionRequest `json:"request"`

	// Context provides additional evaluation context.
	Context *EvalContext `json:"context"`
}

// EvalContext provides context information for policy evaluation.
type EvalContext struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Environment is the deployment environment, if configured.
	Environment string `json:"environment,omitempty"`

	// ProtectedTypes lists resource types the builtin deletion policy
	// refuses to delete.
	ProtectedTypes []string `json:"protected_types,omitempty"`

	// AllowedConnections restricts submissions to the listed connection
	// identities. Empty means every connection is allowed.
	AllowedConnections []string `json:"allowed_connections,omitempty"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
