package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opwatch/opwatch/pkg/tracker"
)

func newRecorderStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Config{Path: filepath.Join(t.TempDir(), "recorder.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func TestRecorderPersistsTerminalStates(t *testing.T) {
	store := newRecorderStore(t)
	recorder := NewRecorder(store, zerolog.Nop())

	started := time.Now().Add(-2 * time.Second)
	recorder.OnStateChanged(tracker.MutationState{
		ConnectionID: "conn-1",
		Token:        "tok-1",
		Operation:    tracker.OperationCreate,
		ResourceType: "network:router",
		ResourceID:   "rtr-9",
		Status:       tracker.StatusSucceeded,
		Message:      "done",
		StartedAt:    started,
	})
	recorder.Close()

	record, err := store.GetByToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("failed to get recorded outcome: %v", err)
	}

	if record.Operation != "create" {
		t.Errorf("expected operation create, got %s", record.Operation)
	}
	if record.Status != "succeeded" || !record.Succeeded {
		t.Errorf("expected succeeded outcome, got status=%s succeeded=%v", record.Status, record.Succeeded)
	}
	if record.ResourceID != "rtr-9" {
		t.Errorf("expected resource rtr-9, got %s", record.ResourceID)
	}
	if record.DurationMS < 2000 {
		t.Errorf("expected duration >= 2000ms, got %d", record.DurationMS)
	}
}

func TestRecorderIgnoresNonTerminalStates(t *testing.T) {
	store := newRecorderStore(t)
	recorder := NewRecorder(store, zerolog.Nop())

	recorder.OnStateChanged(tracker.MutationState{
		ConnectionID: "conn-1",
		Token:        "tok-pending",
		Operation:    tracker.OperationUpdate,
		ResourceType: "network:subnet",
		Status:       tracker.StatusInProgress,
		StartedAt:    time.Now(),
	})
	recorder.Close()

	records, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records for non-terminal state, got %d", len(records))
	}
}

func TestRecorderCloseFlushesBuffer(t *testing.T) {
	store := newRecorderStore(t)
	recorder := NewRecorder(store, zerolog.Nop())

	started := time.Now()
	for i := 0; i < 10; i++ {
		recorder.OnStateChanged(tracker.MutationState{
			ConnectionID: "conn-1",
			Token:        "tok-" + string(rune('a'+i)),
			Operation:    tracker.OperationDelete,
			ResourceType: "network:router",
			Status:       tracker.StatusFailed,
			StartedAt:    started,
		})
	}
	recorder.Close()

	records, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 records after close, got %d", len(records))
	}
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	store := newRecorderStore(t)
	recorder := NewRecorder(store, zerolog.Nop())

	recorder.Close()
	recorder.Close()
}
