package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// slowControlPlane serves non-terminal statuses with a fixed per-call delay
// and records how many status calls overlap in time.
type slowControlPlane struct {
	mu            sync.Mutex
	delay         time.Duration
	nextToken     int
	inFlight      int
	maxInFlight   int
	statusByToken map[string]int
}

func newSlowControlPlane(delay time.Duration) *slowControlPlane {
	return &slowControlPlane{delay: delay, statusByToken: make(map[string]int)}
}

func (c *slowControlPlane) token() (ProgressToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextToken++
	return ProgressToken{Token: fmt.Sprintf("slow-%d", c.nextToken)}, nil
}

func (c *slowControlPlane) Create(context.Context, string, string) (ProgressToken, error) {
	return c.token()
}

func (c *slowControlPlane) Update(context.Context, string, string, string) (ProgressToken, error) {
	return c.token()
}

func (c *slowControlPlane) Delete(context.Context, string, string) (ProgressToken, error) {
	return c.token()
}

func (c *slowControlPlane) Status(_ context.Context, token string) (ProgressDescriptor, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.statusByToken[token]++
	c.mu.Unlock()

	time.Sleep(c.delay)

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()

	return ProgressDescriptor{Token: token, Status: StatusInProgress, Message: "working"}, nil
}

func (c *slowControlPlane) maxConcurrent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

func (c *slowControlPlane) calls(token string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusByToken[token]
}

func (c *slowControlPlane) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.statusByToken {
		total += n
	}
	return total
}

func TestSinglePassInFlight(t *testing.T) {
	// Each pass takes ~3x the poll interval, so an overlapping scheduler
	// would stack passes. Status calls must never run concurrently.
	client := newSlowControlPlane(15 * time.Millisecond)
	tr := newTestTracker(t, client, Config{PollInterval: 5 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if err := tr.SubmitCreate(context.Background(), "conn-1", "registry:bucket", "{}"); err != nil {
			t.Fatalf("SubmitCreate returned error: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return client.totalCalls() >= 9 })
	tr.Close()

	if got := client.maxConcurrent(); got != 1 {
		t.Errorf("max concurrent status calls = %d, want 1", got)
	}
}

func TestEnqueueDuringPassIsDeferred(t *testing.T) {
	client := newSlowControlPlane(30 * time.Millisecond)
	tr := newTestTracker(t, client, Config{PollInterval: 2 * time.Millisecond})

	if err := tr.SubmitCreate(context.Background(), "conn-1", "registry:bucket", "{}"); err != nil {
		t.Fatalf("SubmitCreate returned error: %v", err)
	}

	// Wait until the first pass is mid-flight, then submit a second item.
	waitFor(t, 2*time.Second, func() bool { return client.calls("slow-1") == 1 })
	if err := tr.SubmitCreate(context.Background(), "conn-1", "registry:queue", "{}"); err != nil {
		t.Fatalf("SubmitCreate returned error: %v", err)
	}

	// The in-flight pass works from its snapshot: the new item must not be
	// polled until the next round.
	if got := client.calls("slow-2"); got != 0 {
		t.Errorf("second item polled during the pass it was enqueued in (%d calls)", got)
	}

	waitFor(t, 2*time.Second, func() bool { return client.calls("slow-2") >= 1 })
	tr.Close()
}
