package localstore

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskdeck/taskdeck/internal/task"
)

func writeFile(path string) error {
	return os.WriteFile(path, []byte("not a directory"), 0644)
}

func testSnapshot(userID string, titles ...string) *Snapshot {
	now := time.Now().Truncate(time.Second)
	tasks := make([]task.Task, 0, len(titles))
	for _, title := range titles {
		tasks = append(tasks, task.Task{
			ID:        task.NewID(),
			Title:     title,
			Priority:  task.PriorityMedium,
			Status:    task.StatusTodo,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return &Snapshot{UserID: userID, Tasks: tasks, SyncedAt: now}
}

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()

	store := OpenBadger(filepath.Join(t.TempDir(), "cache"), log.New(testWriter{t}, "[test] ", 0))
	if !store.Available() {
		t.Fatal("badger store unavailable in temp dir")
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestBadgerRoundTrip(t *testing.T) {
	store := openTestStore(t)

	in := testSnapshot("u1", "A", "B", "C")
	due := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	in.Tasks[0].DueDate = &due

	if err := store.Write("u1", in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out, ok := store.Read("u1")
	if !ok {
		t.Fatal("Read missed after Write")
	}
	if out.UserID != "u1" {
		t.Errorf("user id = %q", out.UserID)
	}
	if len(out.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(out.Tasks))
	}
	if out.Tasks[0].DueDate == nil || !out.Tasks[0].DueDate.Equal(due) {
		t.Errorf("due date did not survive round trip: %v", out.Tasks[0].DueDate)
	}
	if !out.SyncedAt.Equal(in.SyncedAt) {
		t.Errorf("synced_at changed: %v != %v", out.SyncedAt, in.SyncedAt)
	}
}

func TestBadgerReadMiss(t *testing.T) {
	store := openTestStore(t)

	if snap, ok := store.Read("nobody"); ok {
		t.Fatalf("expected miss, got %+v", snap)
	}
}

func TestBadgerDelete(t *testing.T) {
	store := openTestStore(t)

	if err := store.Write("u1", testSnapshot("u1", "A")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.Delete("u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Read("u1"); ok {
		t.Fatal("snapshot still readable after Delete")
	}

	// Deleting a missing snapshot is not an error.
	if err := store.Delete("u1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestBadgerPerUserIsolation(t *testing.T) {
	store := openTestStore(t)

	if err := store.Write("u1", testSnapshot("u1", "A")); err != nil {
		t.Fatalf("Write u1 failed: %v", err)
	}
	if err := store.Write("u2", testSnapshot("u2", "X", "Y")); err != nil {
		t.Fatalf("Write u2 failed: %v", err)
	}

	s1, ok := store.Read("u1")
	if !ok || len(s1.Tasks) != 1 {
		t.Fatalf("u1 snapshot wrong: ok=%v tasks=%d", ok, len(s1.Tasks))
	}
	s2, ok := store.Read("u2")
	if !ok || len(s2.Tasks) != 2 {
		t.Fatalf("u2 snapshot wrong: ok=%v tasks=%d", ok, len(s2.Tasks))
	}
}

func TestDegradedStoreNoOps(t *testing.T) {
	// Point badger at an existing file so Open fails.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := writeFile(blocker); err != nil {
		t.Fatalf("setup: %v", err)
	}

	store := OpenBadger(blocker, log.New(testWriter{t}, "[test] ", 0))
	if store.Available() {
		t.Skip("badger opened anyway; cannot exercise degraded mode here")
	}

	if err := store.Write("u1", testSnapshot("u1", "A")); err != nil {
		t.Errorf("degraded Write should no-op, got %v", err)
	}
	if _, ok := store.Read("u1"); ok {
		t.Error("degraded Read should miss")
	}
	if err := store.Delete("u1"); err != nil {
		t.Errorf("degraded Delete should no-op, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("degraded Close should no-op, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()

	if err := store.Write("u1", testSnapshot("u1", "A")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	snap, ok := store.Read("u1")
	if !ok || len(snap.Tasks) != 1 || snap.Tasks[0].Title != "A" {
		t.Fatalf("bad read back: ok=%v snap=%+v", ok, snap)
	}
	if err := store.Delete("u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Read("u1"); ok {
		t.Fatal("snapshot survived Delete")
	}
}
