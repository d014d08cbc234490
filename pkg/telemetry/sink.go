package telemetry

import (
	"time"

	"github.com/opwatch/opwatch/pkg/tracker"
)

// Sink adapts the telemetry system to the tracker's TelemetrySink interface.
// Outcomes fan out to metrics, structured logs, and the event stream.
type Sink struct {
	logger  *Logger
	metrics *Metrics
	events  *EventPublisher
}

// NewSink creates a sink backed by the given telemetry system.
func NewSink(t *Telemetry) *Sink {
	return &Sink{
		logger:  t.Logger.NewComponentLogger("telemetry_sink"),
		metrics: t.Metrics,
		events:  t.Events,
	}
}

// RecordOutcome records a terminal mutation outcome or submission failure.
func (s *Sink) RecordOutcome(outcome tracker.MutationOutcome) {
	op := string(outcome.Operation)

	// Submission failures never produced a tracked state.
	if outcome.Status == "" {
		s.metrics.RecordSubmissionFailure(op, outcome.ResourceType)
		if outcome.Err != nil {
			s.metrics.RecordError(errorClass(outcome.Err), "")
		}

		logger := s.logger.
			WithConnectionID(outcome.ConnectionID).
			WithOperation(op).
			WithResourceType(outcome.ResourceType)
		if outcome.Err != nil {
			logger = logger.WithError(outcome.Err)
		}
		logger.Error("submission rejected")

		reason := ""
		if outcome.Err != nil {
			reason = outcome.Err.Error()
		}
		s.events.PublishSubmissionFailed(outcome.ConnectionID, outcome.ResourceType, op, reason)
		return
	}

	s.metrics.RecordCompletion(op, outcome.ResourceType, string(outcome.Status), outcome.Duration)

	logger := s.logger.
		WithConnectionID(outcome.ConnectionID).
		WithOperation(op).
		WithResourceType(outcome.ResourceType).
		WithField("status", string(outcome.Status)).
		WithField("duration", outcome.Duration.String())
	if outcome.ResourceID != "" {
		logger = logger.WithResourceID(outcome.ResourceID)
	}

	if outcome.Succeeded {
		logger.Info("mutation completed")
		s.events.PublishMutationSucceeded(outcome.Token, outcome.ResourceID, outcome.Duration)
		return
	}

	if outcome.Err != nil {
		logger = logger.WithError(outcome.Err)
		s.metrics.RecordError(errorClass(outcome.Err), "")
	}
	logger.Error("mutation failed")

	reason := string(outcome.Status)
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	s.events.PublishMutationFailed(outcome.Token, outcome.ResourceID, reason)
}

// RecordPollRound records one completed polling pass.
func (s *Sink) RecordPollRound(tracked int, duration time.Duration) {
	s.metrics.RecordPollRound(tracked, duration)
	s.logger.
		WithField("tracked", tracked).
		WithField("duration", duration.String()).
		Trace("polling round completed")
}

// errorClass extracts the tracker error class for metric labelling.
func errorClass(err error) string {
	switch {
	case tracker.IsSubmissionFailure(err):
		return string(tracker.ErrorClassSubmission)
	case tracker.IsTokenNotFound(err):
		return string(tracker.ErrorClassUnrecoverable)
	case tracker.IsTransient(err):
		return string(tracker.ErrorClassTransient)
	default:
		return "unknown"
	}
}

// Bridge republishes tracker state changes on the event stream. It implements
// the tracker's Subscriber interface so UI layers and the history recorder can
// consume a single event feed.
type Bridge struct {
	events *EventPublisher
}

// NewBridge creates a bridge that forwards tracker callbacks to the given
// event publisher.
func NewBridge(events *EventPublisher) *Bridge {
	return &Bridge{events: events}
}

// OnStateChanged publishes a mutation state-change event.
func (b *Bridge) OnStateChanged(state tracker.MutationState) {
	b.events.PublishMutationStateChanged(state.Token, state.ResourceID, string(state.Status), state.Message)
}

// OnPollingRoundComplete is a no-op; round completion is recorded by the sink
// where the round duration is known.
func (b *Bridge) OnPollingRoundComplete() {}
