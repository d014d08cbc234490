package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opwatch/opwatch/pkg/tracker"
)

// Recorder persists terminal mutation outcomes. It implements the tracker's
// Subscriber interface; writes happen on a dedicated goroutine so the
// polling goroutine never blocks on disk IO.
type Recorder struct {
	store  *Store
	logger zerolog.Logger

	buffer chan Record
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// recorderBufferSize bounds how many unwritten outcomes the recorder holds.
// Overflow drops the record with a log line rather than stalling polling.
const recorderBufferSize = 256

// NewRecorder creates a recorder writing to the given store and starts its
// writer goroutine.
func NewRecorder(store *Store, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logger.With().Str("component", "history_recorder").Logger(),
		buffer: make(chan Record, recorderBufferSize),
		done:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.writeLoop()

	return r
}

// OnStateChanged persists the state if it is terminal. Non-terminal
// transitions are not recorded.
func (r *Recorder) OnStateChanged(state tracker.MutationState) {
	if !state.Status.IsTerminal() {
		return
	}

	now := time.Now()
	record := Record{
		Token:        state.Token,
		ConnectionID: state.ConnectionID,
		Operation:    string(state.Operation),
		ResourceType: state.ResourceType,
		ResourceID:   state.ResourceID,
		Status:       string(state.Status),
		Succeeded:    state.Status == tracker.StatusSucceeded,
		Message:      state.Message,
		DurationMS:   state.Elapsed(now).Milliseconds(),
		StartedAt:    state.StartedAt,
		CompletedAt:  now,
	}

	select {
	case r.buffer <- record:
	default:
		r.logger.Warn().
			Str("token", state.Token).
			Msg("History buffer full, outcome dropped")
	}
}

// OnPollingRoundComplete is a no-op; the recorder only cares about terminal
// transitions.
func (r *Recorder) OnPollingRoundComplete() {}

// writeLoop drains the buffer until Close.
func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.buffer:
			r.write(record)

		case <-r.done:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case record := <-r.buffer:
					r.write(record)
				default:
					return
				}
			}
		}
	}
}

// write persists a single record.
func (r *Recorder) write(record Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.Insert(ctx, &record); err != nil {
		r.logger.Error().Err(err).
			Str("token", record.Token).
			Msg("Failed to persist mutation outcome")
		return
	}

	r.logger.Debug().
		Str("token", record.Token).
		Str("status", record.Status).
		Msg("Mutation outcome recorded")
}

// Close flushes buffered records and stops the writer goroutine. It is safe
// to call more than once.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}
