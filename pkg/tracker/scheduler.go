package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PollScheduler drives the polling loop. It is a state machine over the queue
// as a whole: Idle (queue empty, no timer armed), Armed (a single delayed
// pass is scheduled) and Running (one pass executing on a background
// goroutine). At most one pass is ever in flight, and the timer is only armed
// while there is something to poll, so an idle tracker costs nothing.
type PollScheduler struct {
	mu      sync.Mutex
	armed   bool
	running bool
	stopped bool
	timer   *time.Timer

	interval      time.Duration
	statusTimeout time.Duration

	queue     *MutationQueue
	client    ControlPlaneClient
	fan       *fanout
	telemetry TelemetrySink
	logger    zerolog.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newPollScheduler wires a scheduler to the queue it drains. The fanout and
// sinks are shared with the owning Tracker.
func newPollScheduler(
	queue *MutationQueue,
	client ControlPlaneClient,
	fan *fanout,
	telemetry TelemetrySink,
	logger zerolog.Logger,
	tracer trace.Tracer,
	interval, statusTimeout time.Duration,
) *PollScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PollScheduler{
		interval:      interval,
		statusTimeout: statusTimeout,
		queue:         queue,
		client:        client,
		fan:           fan,
		telemetry:     telemetry,
		logger:        logger.With().Str("component", "poll-scheduler").Logger(),
		tracer:        tracer,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Kick arms the poll timer if the scheduler is idle and the queue is
// non-empty. Callers invoke it after every enqueue; it is cheap and safe to
// call at any time.
//
// The idle-or-rearm decision at the end of a pass shares this mutex, so an
// enqueue that races with a finishing pass never loses its wakeup: either the
// pass sees the new item and re-arms, or Kick finds the scheduler idle and
// arms it itself.
func (s *PollScheduler) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.armed || s.running {
		return
	}
	if s.queue.Len() == 0 {
		return
	}
	s.arm()
}

// arm schedules the next pass. Caller must hold s.mu.
func (s *PollScheduler) arm() {
	s.armed = true
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.interval, s.run)
}

// run executes one polling pass and decides whether to re-arm. It is only
// ever entered from the armed timer, which guarantees a single pass at a
// time even when a pass overruns the delay interval.
func (s *PollScheduler) run() {
	defer s.wg.Done()

	s.mu.Lock()
	if s.stopped {
		s.armed = false
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.running = true
	s.mu.Unlock()

	s.pass(s.ctx)

	s.mu.Lock()
	s.running = false
	if !s.stopped && s.queue.Len() > 0 {
		s.arm()
	}
	s.mu.Unlock()
}

// pass performs one polling round: poll every item present at pass start,
// publish diffs, then announce round completion. Items enqueued while the
// pass runs are deferred to the next round by working from a snapshot.
func (s *PollScheduler) pass(ctx context.Context) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "tracker.poll_round")
	defer span.End()

	snapshot := s.queue.Snapshot()
	for i := range snapshot {
		s.pollOne(ctx, snapshot[i])
	}

	s.fan.publishRoundComplete()

	elapsed := time.Since(start)
	if s.telemetry != nil {
		s.telemetry.RecordPollRound(len(snapshot), elapsed)
	}
	span.SetAttributes(
		attribute.Int("tracker.round_items", len(snapshot)),
		attribute.Int("tracker.remaining", s.queue.Len()),
	)
	s.logger.Debug().
		Int("items", len(snapshot)).
		Int("remaining", s.queue.Len()).
		Dur("duration", elapsed).
		Msg("Polling round complete")
}

// pollOne queries status for a single tracked item and applies the outcome.
func (s *PollScheduler) pollOne(ctx context.Context, prev MutationState) {
	sctx, cancel := context.WithTimeout(ctx, s.statusTimeout)
	desc, err := s.client.Status(sctx, prev.Token)
	cancel()

	if err != nil {
		s.handlePollError(prev, err)
		return
	}

	next := prev.Advance(desc)
	if err := next.Status.Validate(); err != nil {
		// The control plane reported a status this build does not know.
		// Leave the item untouched and retry on the next pass.
		s.logger.Warn().Err(err).
			Str("token", prev.Token).
			Msg("Unrecognized status in progress descriptor")
		return
	}

	if next.Equal(prev) {
		return
	}

	if next.Status.IsTerminal() {
		s.queue.Remove(prev.Token)
		s.fan.publishStateChanged(next)
		s.recordTerminal(next, nil)
		s.logger.Info().
			Str("token", next.Token).
			Str("status", string(next.Status)).
			Str("resource_type", next.ResourceType).
			Str("resource_id", next.ResourceID).
			Msg("Mutation reached terminal state")
		return
	}

	s.queue.Replace(next)
	s.fan.publishStateChanged(next)
}

// handlePollError applies the transient/unrecoverable split. A token the
// control plane no longer recognizes is a legitimate terminal signal: publish
// one Failed state and drop the item. Anything else is retried silently on
// the next pass so that a network blip never produces a noisy intermediate
// event.
func (s *PollScheduler) handlePollError(prev MutationState, err error) {
	perr := classifyPollError(prev.Token, err)

	if perr.Class != ErrorClassUnrecoverable {
		s.logger.Debug().Err(err).
			Str("token", prev.Token).
			Msg("Transient poll failure, will retry")
		return
	}

	failed := prev
	failed.Status = StatusFailed
	failed.Message = perr.Message

	s.queue.Remove(prev.Token)
	s.fan.publishStateChanged(failed)
	s.recordTerminal(failed, perr)
	s.logger.Warn().Err(err).
		Str("token", prev.Token).
		Str("resource_type", prev.ResourceType).
		Msg("Progress token no longer resolvable, tracking abandoned")
}

// recordTerminal reports a terminal outcome to the telemetry sink.
func (s *PollScheduler) recordTerminal(state MutationState, cause error) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.RecordOutcome(MutationOutcome{
		Token:        state.Token,
		ConnectionID: state.ConnectionID,
		Operation:    state.Operation,
		ResourceType: state.ResourceType,
		ResourceID:   state.ResourceID,
		Status:       state.Status,
		Succeeded:    state.Status == StatusSucceeded,
		Duration:     state.Elapsed(time.Now()),
		Err:          cause,
	})
}

// Stop ceases all future passes and waits for an in-flight pass to finish.
// Mutations still pending are abandoned; callers must treat restart as
// unknown outcome and re-query the control plane if they need to know.
func (s *PollScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.armed && s.timer != nil && s.timer.Stop() {
		s.armed = false
		s.wg.Done()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
