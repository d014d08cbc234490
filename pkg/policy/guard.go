package policy

import (
	"context"
	"strings"
	"time"

	"github.com/opwatch/opwatch/pkg/telemetry"
	"github.com/opwatch/opwatch/pkg/tracker"
)

// Guard adapts the policy engine to the tracker's SubmissionGuard interface.
// A blocked submission surfaces to the caller as a submission failure with
// the policy-denied code.
type Guard struct {
	engine             *Engine
	protectedTypes     []string
	allowedConnections []string
	environment        string
	events             *telemetry.EventPublisher
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithProtectedTypes sets the resource types the builtin deletion policy
// refuses to delete.
func WithProtectedTypes(types []string) GuardOption {
	return func(g *Guard) {
		g.protectedTypes = types
	}
}

// WithAllowedConnections restricts submissions to the listed connection
// identities. An empty list allows every connection.
func WithAllowedConnections(connections []string) GuardOption {
	return func(g *Guard) {
		g.allowedConnections = connections
	}
}

// WithEnvironment tags evaluations with a deployment environment.
func WithEnvironment(env string) GuardOption {
	return func(g *Guard) {
		g.environment = env
	}
}

// WithEventPublisher publishes a policy.violation event for every blocking
// violation.
func WithEventPublisher(events *telemetry.EventPublisher) GuardOption {
	return func(g *Guard) {
		g.events = events
	}
}

// NewGuard creates a submission guard backed by the given engine.
func NewGuard(engine *Engine, opts ...GuardOption) *Guard {
	g := &Guard{engine: engine}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize evaluates the submission and returns a policy-denied error when
// any blocking violation fires. Evaluation warnings never block.
func (g *Guard) Authorize(ctx context.Context, req tracker.SubmissionRequest) error {
	decision, err := g.engine.EvaluateSubmission(ctx, &Input{
		Request: &req,
		Context: &EvalContext{
			Timestamp:          time.Now(),
			Environment:        g.environment,
			ProtectedTypes:     g.protectedTypes,
			AllowedConnections: g.allowedConnections,
		},
	})
	if err != nil {
		return &tracker.TrackerError{
			Class:     tracker.ErrorClassSubmission,
			Code:      tracker.CodePolicyDenied,
			Message:   "policy evaluation failed",
			Operation: req.Operation,
			Err:       err,
		}
	}

	if decision.Allowed {
		return nil
	}

	var blocking []string
	for _, v := range decision.Violations {
		if !v.Severity.blocking() {
			continue
		}
		blocking = append(blocking, v.Policy+": "+v.Message)
		if g.events != nil {
			g.events.PublishPolicyViolation(req.ResourceType, v.Policy, v.Message)
		}
	}

	return &tracker.TrackerError{
		Class:     tracker.ErrorClassSubmission,
		Code:      tracker.CodePolicyDenied,
		Message:   "submission denied by policy: " + strings.Join(blocking, "; "),
		Operation: req.Operation,
	}
}
