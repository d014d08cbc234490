package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPollInterval is the fixed delay between polling passes.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultStatusTimeout bounds a single status call within a pass.
	DefaultStatusTimeout = 15 * time.Second
)

// Config carries the optional collaborators and tuning knobs for a Tracker.
// The zero value is usable: defaults are applied in New.
type Config struct {
	// PollInterval is the fixed delay between polling passes.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// StatusTimeout bounds each individual status call.
	// Defaults to DefaultStatusTimeout.
	StatusTimeout time.Duration

	// Logger is the structured logger for engine internals.
	// Defaults to a disabled logger.
	Logger zerolog.Logger

	// Telemetry receives terminal outcomes and poll-round records. Optional.
	Telemetry TelemetrySink

	// Guard can veto submissions before they reach the control plane. Optional.
	Guard SubmissionGuard

	// Tracer is the OpenTelemetry tracer for submission and poll-round spans.
	// Defaults to the globally registered tracer.
	Tracer trace.Tracer
}

// Tracker is the engine façade: the single entry point for submitting
// mutations, inspecting last-known state and subscribing to state changes.
// Construct one Tracker per logical connection scope and pass it to
// collaborators explicitly; there is no ambient singleton.
type Tracker struct {
	client    ControlPlaneClient
	queue     *MutationQueue
	scheduler *PollScheduler
	fan       *fanout
	guard     SubmissionGuard
	telemetry TelemetrySink
	logger    zerolog.Logger
	tracer    trace.Tracer
	closed    atomic.Bool
}

// New creates a tracker polling the given control-plane client.
func New(client ControlPlaneClient, cfg Config) (*Tracker, error) {
	if client == nil {
		return nil, &TrackerError{
			Class:   ErrorClassSubmission,
			Code:    CodeInvalidArgument,
			Message: "control plane client is required",
		}
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = DefaultStatusTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/opwatch/opwatch/pkg/tracker")
	}

	queue := NewMutationQueue()
	fan := newFanout()
	logger := cfg.Logger.With().Str("component", "tracker").Logger()

	t := &Tracker{
		client:    client,
		queue:     queue,
		fan:       fan,
		guard:     cfg.Guard,
		telemetry: cfg.Telemetry,
		logger:    logger,
		tracer:    cfg.Tracer,
	}
	t.scheduler = newPollScheduler(
		queue, client, fan, cfg.Telemetry, cfg.Logger, cfg.Tracer,
		cfg.PollInterval, cfg.StatusTimeout,
	)
	return t, nil
}

// SubmitCreate submits a create mutation and starts tracking its progress.
// The call blocks for the remote round trip that produces the progress token,
// so invoke it from a background goroutine, not a UI loop. A returned error
// always means nothing entered the tracking queue.
func (t *Tracker) SubmitCreate(ctx context.Context, connectionID, resourceType, desiredState string) error {
	return t.submit(ctx, OperationCreate, connectionID, resourceType, "",
		func(ctx context.Context) (ProgressToken, error) {
			return t.client.Create(ctx, resourceType, desiredState)
		})
}

// SubmitUpdate submits an update mutation for an existing resource.
func (t *Tracker) SubmitUpdate(ctx context.Context, connectionID, resourceType, resourceID, patch string) error {
	return t.submit(ctx, OperationUpdate, connectionID, resourceType, resourceID,
		func(ctx context.Context) (ProgressToken, error) {
			return t.client.Update(ctx, resourceType, resourceID, patch)
		})
}

// SubmitDelete submits a delete mutation for an existing resource.
func (t *Tracker) SubmitDelete(ctx context.Context, connectionID, resourceType, resourceID string) error {
	return t.submit(ctx, OperationDelete, connectionID, resourceType, resourceID,
		func(ctx context.Context) (ProgressToken, error) {
			return t.client.Delete(ctx, resourceType, resourceID)
		})
}

// submit is the common path: guard check, remote call, enqueue, kick.
func (t *Tracker) submit(
	ctx context.Context,
	op OperationKind,
	connectionID, resourceType, resourceID string,
	call func(context.Context) (ProgressToken, error),
) error {
	req := SubmissionRequest{
		ConnectionID: connectionID,
		Operation:    op,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}

	if t.closed.Load() {
		serr := &TrackerError{
			Class:     ErrorClassSubmission,
			Code:      CodeTrackerClosed,
			Message:   "tracker is closed",
			Operation: op,
		}
		t.recordSubmissionFailure(req, serr)
		return serr
	}

	if t.guard != nil {
		if err := t.guard.Authorize(ctx, req); err != nil {
			serr := &TrackerError{
				Class:     ErrorClassSubmission,
				Code:      CodePolicyDenied,
				Message:   "submission denied by policy",
				Operation: op,
				Err:       err,
			}
			t.recordSubmissionFailure(req, serr)
			return serr
		}
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, "tracker.submit",
		trace.WithAttributes(
			attribute.String("mutation.operation", string(op)),
			attribute.String("mutation.resource_type", resourceType),
		))
	token, err := call(ctx)
	if err != nil {
		span.RecordError(err)
		span.End()
		serr := NewSubmissionError("control plane rejected submission", err).WithOperation(op)
		t.recordSubmissionFailure(req, serr)
		return serr
	}
	span.SetAttributes(attribute.String("mutation.token", token.Token))
	span.End()

	if token.Token == "" {
		serr := &TrackerError{
			Class:     ErrorClassSubmission,
			Code:      CodeInvalidArgument,
			Message:   "control plane returned an empty progress token",
			Operation: op,
		}
		t.recordSubmissionFailure(req, serr)
		return serr
	}

	state := MutationState{
		ConnectionID: connectionID,
		Token:        token.Token,
		Operation:    op,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusPending,
		StartedAt:    start,
	}
	if err := t.queue.Enqueue(state); err != nil {
		t.recordSubmissionFailure(req, err)
		return err
	}

	t.scheduler.Kick()
	t.logger.Debug().
		Str("token", token.Token).
		Str("operation", string(op)).
		Str("resource_type", resourceType).
		Str("connection_id", connectionID).
		Msg("Mutation submitted and tracking started")
	return nil
}

// recordSubmissionFailure reports a failed submission to the telemetry sink.
// Submission failures are distinct from polling failures: they surface to the
// caller synchronously, never enter the queue, and carry a zero duration.
func (t *Tracker) recordSubmissionFailure(req SubmissionRequest, err error) {
	t.logger.Warn().Err(err).
		Str("operation", string(req.Operation)).
		Str("resource_type", req.ResourceType).
		Msg("Submission failed")
	if t.telemetry == nil {
		return
	}
	t.telemetry.RecordOutcome(MutationOutcome{
		ConnectionID: req.ConnectionID,
		Operation:    req.Operation,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Succeeded:    false,
		Duration:     0,
		Err:          err,
	})
}

// CurrentState returns the last-known state of an in-flight mutation for the
// given resource, or nil if nothing is being tracked for that key. It is a
// read-only snapshot: repeated calls without an intervening polling pass
// return identical results.
func (t *Tracker) CurrentState(connectionID, resourceType, resourceID string) *MutationState {
	state, ok := t.queue.Find(connectionID, resourceType, resourceID)
	if !ok {
		return nil
	}
	return &state
}

// States returns a snapshot of every mutation currently being tracked.
func (t *Tracker) States() []MutationState {
	return t.queue.Snapshot()
}

// InFlight returns the number of mutations currently being tracked.
func (t *Tracker) InFlight() int {
	return t.queue.Len()
}

// Subscribe registers a handler for state changes and round completions.
// Handlers are invoked synchronously on the polling goroutine in registration
// order, which is what guarantees per-token ordering.
func (t *Tracker) Subscribe(sub Subscriber) Subscription {
	return t.fan.subscribe(sub)
}

// Close stops scheduling polling passes and waits for an in-flight pass to
// finish. Mutations still pending are abandoned; no terminal event will be
// published for them.
func (t *Tracker) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.scheduler.Stop()
	t.logger.Debug().Int("abandoned", t.queue.Len()).Msg("Tracker closed")
}

// fanout is the tracker-scoped subscription registry. It is an explicit list
// of handlers rather than a process-wide event bus, so a tracker's effects
// stay confined to its own subscribers.
type fanout struct {
	mu      sync.RWMutex
	nextID  int
	entries []fanoutEntry
}

type fanoutEntry struct {
	id  int
	sub Subscriber
}

func newFanout() *fanout {
	return &fanout{}
}

func (f *fanout) subscribe(sub Subscriber) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.entries = append(f.entries, fanoutEntry{id: id, sub: sub})
	return &subscription{fan: f, id: id}
}

func (f *fanout) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.entries {
		if f.entries[i].id == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return
		}
	}
}

// publishStateChanged delivers a state change to every subscriber. Delivery
// is synchronous so that publications for one token are never reordered or
// delivered concurrently.
func (f *fanout) publishStateChanged(state MutationState) {
	f.mu.RLock()
	entries := make([]fanoutEntry, len(f.entries))
	copy(entries, f.entries)
	f.mu.RUnlock()

	for _, e := range entries {
		e.sub.OnStateChanged(state)
	}
}

// publishRoundComplete announces the end of one polling pass.
func (f *fanout) publishRoundComplete() {
	f.mu.RLock()
	entries := make([]fanoutEntry, len(f.entries))
	copy(entries, f.entries)
	f.mu.RUnlock()

	for _, e := range entries {
		e.sub.OnPollingRoundComplete()
	}
}

// subscription is the cancellation handle returned by Subscribe.
type subscription struct {
	fan  *fanout
	id   int
	once sync.Once
}

// Cancel removes the subscriber. Safe to call multiple times.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.fan.remove(s.id)
	})
}
