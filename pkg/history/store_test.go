package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Config{Path: filepath.Join(t.TempDir(), "history.db")})
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

func testRecord(token string) *Record {
	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	return &Record{
		Token:        token,
		ConnectionID: "conn-1",
		Operation:    "create",
		ResourceType: "network:router",
		ResourceID:   "rtr-42",
		Status:       "succeeded",
		Succeeded:    true,
		Message:      "provisioned",
		DurationMS:   1500,
		StartedAt:    started,
		CompletedAt:  started.Add(1500 * time.Millisecond),
	}
}

func TestStoreInsertAndGetByToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := testRecord("tok-1")
	if err := store.Insert(ctx, record); err != nil {
		t.Fatalf("failed to insert record: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected insert to assign an ID")
	}

	got, err := store.GetByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}

	if got.Token != "tok-1" {
		t.Errorf("expected token tok-1, got %s", got.Token)
	}
	if got.ConnectionID != "conn-1" {
		t.Errorf("expected connection conn-1, got %s", got.ConnectionID)
	}
	if got.Status != "succeeded" || !got.Succeeded {
		t.Errorf("expected succeeded outcome, got status=%s succeeded=%v", got.Status, got.Succeeded)
	}
	if got.DurationMS != 1500 {
		t.Errorf("expected duration 1500ms, got %d", got.DurationMS)
	}
}

func TestStoreGetByTokenNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetByToken(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestStoreListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	records := []*Record{
		{Token: "tok-a", ConnectionID: "conn-1", Operation: "create", ResourceType: "network:router", Status: "succeeded", Succeeded: true, StartedAt: base, CompletedAt: base.Add(1 * time.Minute)},
		{Token: "tok-b", ConnectionID: "conn-1", Operation: "delete", ResourceType: "network:subnet", Status: "failed", StartedAt: base, CompletedAt: base.Add(2 * time.Minute)},
		{Token: "tok-c", ConnectionID: "conn-2", Operation: "update", ResourceType: "network:router", Status: "succeeded", Succeeded: true, StartedAt: base, CompletedAt: base.Add(3 * time.Minute)},
	}
	for _, r := range records {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("failed to insert %s: %v", r.Token, err)
		}
	}

	all, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// Newest first.
	if all[0].Token != "tok-c" {
		t.Errorf("expected tok-c first, got %s", all[0].Token)
	}

	byConn, err := store.List(ctx, Filter{ConnectionID: "conn-1"})
	if err != nil {
		t.Fatalf("failed to list by connection: %v", err)
	}
	if len(byConn) != 2 {
		t.Errorf("expected 2 records for conn-1, got %d", len(byConn))
	}

	byType, err := store.List(ctx, Filter{ResourceType: "network:router"})
	if err != nil {
		t.Fatalf("failed to list by resource type: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("expected 2 router records, got %d", len(byType))
	}

	failed, err := store.List(ctx, Filter{Status: "failed"})
	if err != nil {
		t.Fatalf("failed to list by status: %v", err)
	}
	if len(failed) != 1 || failed[0].Token != "tok-b" {
		t.Errorf("expected only tok-b failed, got %v", failed)
	}

	limited, err := store.List(ctx, Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("failed to list with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].Token != "tok-b" {
		t.Errorf("expected tok-b at offset 1, got %v", limited)
	}
}

func TestStoreSummarize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	statuses := []string{"succeeded", "succeeded", "failed", "cancel_complete"}
	for i, status := range statuses {
		record := testRecord("tok-" + string(rune('a'+i)))
		record.Status = status
		record.Succeeded = status == "succeeded"
		record.CompletedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Insert(ctx, record); err != nil {
			t.Fatalf("failed to insert record %d: %v", i, err)
		}
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("failed to summarize: %v", err)
	}

	if summary.Total != 4 {
		t.Errorf("expected total 4, got %d", summary.Total)
	}
	if summary.ByStatus["succeeded"] != 2 {
		t.Errorf("expected 2 succeeded, got %d", summary.ByStatus["succeeded"])
	}
	if summary.ByStatus["failed"] != 1 {
		t.Errorf("expected 1 failed, got %d", summary.ByStatus["failed"])
	}
	if summary.ByStatus["cancel_complete"] != 1 {
		t.Errorf("expected 1 cancel_complete, got %d", summary.ByStatus["cancel_complete"])
	}
}

func TestStorePruneBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	old := testRecord("tok-old")
	old.CompletedAt = base.Add(-48 * time.Hour)
	recent := testRecord("tok-recent")
	recent.CompletedAt = base

	if err := store.Insert(ctx, old); err != nil {
		t.Fatalf("failed to insert old record: %v", err)
	}
	if err := store.Insert(ctx, recent); err != nil {
		t.Fatalf("failed to insert recent record: %v", err)
	}

	removed, err := store.PruneBefore(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 record pruned, got %d", removed)
	}

	if _, err := store.GetByToken(ctx, "tok-old"); err == nil {
		t.Error("expected pruned record to be gone")
	}
	if _, err := store.GetByToken(ctx, "tok-recent"); err != nil {
		t.Errorf("expected recent record to survive: %v", err)
	}
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreHonorsPoolSettings(t *testing.T) {
	store, err := NewStore(Config{
		Path:            filepath.Join(t.TempDir(), "pool.db"),
		MaxOpenConns:    3,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if got := store.db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("max open connections = %d, want 3", got)
	}

	// Zero-valued settings fall back to defaults.
	fallback, err := NewStore(Config{Path: filepath.Join(t.TempDir(), "defaults.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := fallback.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { _ = fallback.Close() })

	if got := fallback.db.Stats().MaxOpenConnections; got != defaultMaxOpenConns {
		t.Errorf("default max open connections = %d, want %d", got, defaultMaxOpenConns)
	}
}
