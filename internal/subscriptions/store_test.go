package subscriptions

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMigratesLegacySnapshotIntoStructuredStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "subscriptions.json")
	dbPath := filepath.Join(dir, "subscriptions")

	legacy := `{"acme/widgets": {"registration_id": 42, "event_types": ["push"], "session": "review", "created_at": "2026-01-15T10:00:00Z"}}`
	if err := os.WriteFile(legacyPath, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy snapshot: %v", err)
	}

	store, err := Open(Options{DBPath: dbPath, LegacyPath: legacyPath, Log: testLog()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	subs := store.List()
	if len(subs) != 1 {
		t.Fatalf("expected one subscription, got %d", len(subs))
	}
	sub := subs[0]
	if sub.Repository != "acme/widgets" || sub.RegistrationID != 42 || sub.SessionOverride != "review" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	if _, err := os.Stat(legacyPath); !os.IsNotExist(err) {
		t.Fatalf("expected legacy snapshot to be deleted, stat err=%v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Second start loads from the structured store.
	reloaded, err := Open(Options{DBPath: dbPath, LegacyPath: legacyPath, Log: testLog()})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })

	again, ok := reloaded.Get("acme/widgets")
	if !ok {
		t.Fatalf("expected migrated subscription after reopen")
	}
	if again.RegistrationID != 42 || len(again.EventTypes) != 1 || again.EventTypes[0] != "push" {
		t.Fatalf("unexpected reloaded subscription: %+v", again)
	}
}

func TestCorruptLegacySnapshotIsSkippedAndKept(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "subscriptions.json")
	if err := os.WriteFile(legacyPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt snapshot: %v", err)
	}

	store, err := Open(Options{DBPath: filepath.Join(dir, "subscriptions"), LegacyPath: legacyPath, Log: testLog()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if got := len(store.List()); got != 0 {
		t.Fatalf("expected empty store, got %d entries", got)
	}
	if _, err := os.Stat(legacyPath); err != nil {
		t.Fatalf("corrupt snapshot must not be deleted: %v", err)
	}
}

func TestSeedFallbackBootstrapsStructuredStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subscriptions")
	seed := []RepoSubscription{{Repository: "acme/widgets", RegistrationID: 7, EventTypes: []string{"push"}}}

	store, err := Open(Options{DBPath: dbPath, Seed: seed, Log: testLog()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.Get("acme/widgets"); !ok {
		t.Fatalf("expected seeded subscription")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// The seed was persisted; a later start without it still has the row.
	reloaded, err := Open(Options{DBPath: dbPath, Log: testLog()})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })

	if _, ok := reloaded.Get("acme/widgets"); !ok {
		t.Fatalf("expected seeded subscription to survive restart")
	}
}

func TestStructuredStoreRowsWinOverSeed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subscriptions")

	store, err := Open(Options{DBPath: dbPath, Log: testLog()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.Put(RepoSubscription{Repository: "acme/widgets", RegistrationID: 9})
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reloaded, err := Open(Options{
		DBPath: dbPath,
		Seed:   []RepoSubscription{{Repository: "other/repo", RegistrationID: 1}},
		Log:    testLog(),
	})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })

	if _, ok := reloaded.Get("other/repo"); ok {
		t.Fatalf("seed must not apply when structured store has rows")
	}
	if _, ok := reloaded.Get("acme/widgets"); !ok {
		t.Fatalf("expected persisted row")
	}
}

func TestMemoryOnlyStoreServesOperations(t *testing.T) {
	t.Parallel()

	store, err := Open(Options{Seed: []RepoSubscription{{Repository: "acme/widgets"}}, Log: testLog()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	store.Put(RepoSubscription{Repository: "acme/gadgets", RegistrationID: 3, CreatedAt: time.Now()})
	if got := len(store.List()); got != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", got)
	}

	store.Remove("acme/widgets")
	store.Remove("never/existed")
	if _, ok := store.Get("acme/widgets"); ok {
		t.Fatalf("expected removal")
	}
}

func TestDegradedModeKeepsLegacySnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "subscriptions.json")
	legacy := `{"acme/widgets": {"registration_id": 42}}`
	if err := os.WriteFile(legacyPath, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy snapshot: %v", err)
	}

	// No structured store configured: entries load into memory but the
	// snapshot survives so a later start can migrate it properly.
	store, err := Open(Options{LegacyPath: legacyPath, Log: testLog()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, ok := store.Get("acme/widgets"); !ok {
		t.Fatalf("expected legacy entry in memory")
	}
	if _, err := os.Stat(legacyPath); err != nil {
		t.Fatalf("legacy snapshot must be kept without a structured store: %v", err)
	}
}
