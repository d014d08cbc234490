package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// syncEventsConfig returns an events configuration that delivers inline, so
// tests can assert without sleeping. Delivery still happens on a goroutine
// per subscriber, hence the collector below.
func syncEventsConfig() EventsConfig {
	return EventsConfig{
		Enabled:      true,
		BufferSize:   10,
		MaxBatchSize: 10,
		EnableAsync:  false,
	}
}

type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) collect(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *eventCollector) waitForCount(t *testing.T, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= want {
			c.mu.Lock()
			defer c.mu.Unlock()
			out := make([]Event, len(c.events))
			copy(out, c.events)
			return out
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", want, c.count())
	return nil
}

func TestEventPublisherDeliversToSubscribers(t *testing.T) {
	ep, err := NewEventPublisher(syncEventsConfig())
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	collector := &eventCollector{}
	ep.Subscribe(collector.collect, nil)

	if err := ep.PublishMutationSubmitted("tok-1", "conn-1", "bucket", "create"); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	events := collector.waitForCount(t, 1)
	e := events[0]
	if e.Type != EventTypeMutationSubmitted {
		t.Errorf("type = %s, want %s", e.Type, EventTypeMutationSubmitted)
	}
	if e.Token != "tok-1" || e.ConnectionID != "conn-1" || e.ResourceType != "bucket" {
		t.Errorf("identity fields not propagated: %+v", e)
	}
	if e.ID == "" {
		t.Error("event ID should be assigned on publish")
	}
	if e.Timestamp.IsZero() {
		t.Error("event timestamp should be assigned on publish")
	}
}

func TestEventPublisherSubscriberFilter(t *testing.T) {
	ep, err := NewEventPublisher(syncEventsConfig())
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	failures := &eventCollector{}
	all := &eventCollector{}
	ep.Subscribe(failures.collect, FilterByType(EventTypeMutationFailed))
	ep.Subscribe(all.collect, nil)

	ep.PublishMutationSucceeded("tok-1", "r-1", time.Second)
	ep.PublishMutationFailed("tok-2", "r-2", "boom")

	all.waitForCount(t, 2)
	events := failures.waitForCount(t, 1)
	if events[0].Token != "tok-2" {
		t.Errorf("filtered subscriber got %+v, want tok-2 failure", events[0])
	}
	if failures.count() != 1 {
		t.Errorf("filtered subscriber received %d events, want 1", failures.count())
	}
}

func TestEventPublisherDisabledIsNoop(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	collector := &eventCollector{}
	ep.Subscribe(collector.collect, nil)

	if err := ep.Publish(Event{Type: EventTypeError, Message: "dropped"}); err != nil {
		t.Fatalf("publish on disabled publisher should not error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if collector.count() != 0 {
		t.Errorf("disabled publisher delivered %d events, want 0", collector.count())
	}
}

func TestFilterByLevel(t *testing.T) {
	filter := FilterByLevel(EventLevelWarning)
	if filter(Event{Level: EventLevelInfo}) {
		t.Error("info should be filtered below warning")
	}
	if !filter(Event{Level: EventLevelWarning}) || !filter(Event{Level: EventLevelError}) {
		t.Error("warning and error should pass a warning-level filter")
	}
}

func TestFilterByToken(t *testing.T) {
	filter := FilterByToken("tok-1")
	if !filter(Event{Token: "tok-1"}) || filter(Event{Token: "tok-2"}) {
		t.Error("token filter misclassified")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := DefaultConfig()
	bad.Logging.Level = "loud"
	if err := bad.Validate(); err == nil {
		t.Error("invalid log level should fail validation")
	}

	bad = DefaultConfig()
	bad.Tracing.Enabled = true
	bad.Tracing.SamplingRate = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("out-of-range sampling rate should fail validation")
	}

	bad = DefaultConfig()
	bad.ServiceName = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty service name should fail validation")
	}
}

func TestTrackerErrorClassLabels(t *testing.T) {
	if got := errorClass(errors.New("plain")); got != "unknown" {
		t.Errorf("plain error class = %q, want unknown", got)
	}
}
