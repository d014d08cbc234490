package tracker

import (
	"sync"
)

// MutationQueue is the thread-safe in-memory collection of tracked mutations.
// Arbitrary caller goroutines enqueue new items while the single polling
// goroutine replaces and removes them, so every operation takes the lock.
//
// Items stay resident during a polling pass; the pass works from a snapshot
// and writes results back with Replace/Remove. This keeps CurrentState
// consistent at every moment and makes the token-uniqueness invariant easy to
// hold: at most one state per token, enforced at Enqueue.
type MutationQueue struct {
	mu    sync.Mutex
	items []MutationState
}

// NewMutationQueue creates an empty queue.
func NewMutationQueue() *MutationQueue {
	return &MutationQueue{}
}

// Enqueue adds a new mutation to the queue. It returns a classified error if
// an item with the same token is already tracked.
func (q *MutationQueue) Enqueue(state MutationState) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].Token == state.Token {
			return &TrackerError{
				Class:   ErrorClassSubmission,
				Code:    CodeDuplicateToken,
				Message: "token already tracked",
				Token:   state.Token,
			}
		}
	}

	q.items = append(q.items, state)
	return nil
}

// Snapshot returns a copy of all currently tracked items in enqueue order.
// Items enqueued after the snapshot is taken are not included, which is what
// defers them to the next polling pass.
func (q *MutationQueue) Snapshot() []MutationState {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]MutationState, len(q.items))
	copy(out, q.items)
	return out
}

// Replace swaps the tracked state for the given token with a newly derived
// one. It is a no-op if the token is no longer tracked.
func (q *MutationQueue) Replace(state MutationState) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].Token == state.Token {
			q.items[i] = state
			return
		}
	}
}

// Remove drops the item with the given token. It returns true if an item was
// removed.
func (q *MutationQueue) Remove(token string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].Token == token {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the tracked state for a specific resource, or false if nothing
// is in flight for that key. Resource identifiers are only comparable within
// the same connection scope, so all three key parts must match.
func (q *MutationQueue) Find(connectionID, resourceType, resourceID string) (MutationState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		item := &q.items[i]
		if item.ConnectionID == connectionID &&
			item.ResourceType == resourceType &&
			item.ResourceID == resourceID {
			return *item, true
		}
	}
	return MutationState{}, false
}

// Len returns the number of currently tracked items.
func (q *MutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
