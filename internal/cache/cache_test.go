package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/taskdeck/taskdeck/internal/localstore"
	"github.com/taskdeck/taskdeck/internal/remote"
	"github.com/taskdeck/taskdeck/internal/task"
)

// mockRemote is an in-memory remote store with switchable failure modes and
// call counting.
type mockRemote struct {
	mu   sync.Mutex
	rows map[string][]task.Task // userID -> newest-first

	fetchCalls  int
	insertCalls int
	updateCalls int
	deleteCalls int

	failFetch  bool
	failInsert bool
	failUpdate bool
	failDelete bool
}

func newMockRemote() *mockRemote {
	return &mockRemote{rows: make(map[string][]task.Task)}
}

func (m *mockRemote) FetchAll(_ context.Context, userID string) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.failFetch {
		return nil, fmt.Errorf("mock fetch failure")
	}
	return task.CloneAll(m.rows[userID]), nil
}

func (m *mockRemote) Insert(_ context.Context, userID string, t task.Task) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.failInsert {
		return task.Task{}, fmt.Errorf("mock insert failure")
	}
	confirmed := t.Clone()
	confirmed.ID = task.NewID()
	now := time.Now().UTC().Truncate(time.Second)
	confirmed.CreatedAt = now
	confirmed.UpdatedAt = now
	m.rows[userID] = append([]task.Task{confirmed}, m.rows[userID]...)
	return confirmed, nil
}

func (m *mockRemote) Update(_ context.Context, userID, id string, t task.Task) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failUpdate {
		return task.Task{}, fmt.Errorf("mock update failure")
	}
	for i, row := range m.rows[userID] {
		if row.ID == id {
			confirmed := t.Clone()
			confirmed.ID = id
			confirmed.CreatedAt = row.CreatedAt
			confirmed.UpdatedAt = time.Now().UTC().Truncate(time.Second)
			m.rows[userID][i] = confirmed
			return confirmed, nil
		}
	}
	return task.Task{}, remote.ErrNotFound
}

func (m *mockRemote) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.failDelete {
		return fmt.Errorf("mock delete failure")
	}
	for i, row := range m.rows[userID] {
		if row.ID == id {
			m.rows[userID] = append(m.rows[userID][:i], m.rows[userID][i+1:]...)
			return nil
		}
	}
	return remote.ErrNotFound
}

func (m *mockRemote) calls() (fetch, insert, update, del int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls, m.insertCalls, m.updateCalls, m.deleteCalls
}

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(logWriter{t}, "[test] ", 0)
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestManager(t *testing.T) (*Manager, *mockRemote, *localstore.Memory) {
	t.Helper()

	rs := newMockRemote()
	ls := localstore.NewMemory()
	m := NewManager("u1", ls, rs, Options{Logger: testLogger(t)})
	return m, rs, ls
}

func TestAddTaskOptimisticThenConfirmed(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	confirmed, err := m.AddTask(ctx, task.Draft{Title: "New task"})
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if task.IsTempID(confirmed.ID) {
		t.Errorf("confirmed task kept temp id %q", confirmed.ID)
	}

	snap := m.GetSnapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d tasks, want 1", len(snap))
	}
	if snap[0].ID != confirmed.ID || snap[0].Title != "New task" {
		t.Errorf("snapshot entry = %+v", snap[0])
	}
	for _, tk := range snap {
		if task.IsTempID(tk.ID) {
			t.Errorf("temp task leaked into confirmed snapshot: %s", tk.ID)
		}
	}
}

func TestAddTaskOptimisticVisibleBeforeConfirm(t *testing.T) {
	m, rs, _ := newTestManager(t)

	// Capture the snapshot as the first listener notification sees it,
	// i.e. right after the optimistic commit.
	var firstSeen []task.Task
	id := m.AddListener(func() {
		if firstSeen == nil {
			firstSeen = m.GetSnapshot()
		}
	})
	defer m.RemoveListener(id)

	if _, err := m.AddTask(context.Background(), task.Draft{Title: "Optimistic"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	if len(firstSeen) != 1 {
		t.Fatalf("optimistic snapshot has %d tasks, want 1", len(firstSeen))
	}
	if !task.IsTempID(firstSeen[0].ID) {
		t.Errorf("first visible entry should carry temp id, got %q", firstSeen[0].ID)
	}

	if _, ins, _, _ := rs.calls(); ins != 1 {
		t.Errorf("insert calls = %d, want 1", ins)
	}
}

func TestAddTaskRollbackOnInsertFailure(t *testing.T) {
	m, rs, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.AddTask(ctx, task.Draft{Title: "Existing"}); err != nil {
		t.Fatalf("seed AddTask failed: %v", err)
	}
	before := m.GetSnapshot()

	rs.failInsert = true
	if _, err := m.AddTask(ctx, task.Draft{Title: "Doomed"}); err == nil {
		t.Fatal("expected AddTask to fail")
	}

	after := m.GetSnapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("snapshot changed across failed AddTask:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestAddTaskRejectsInvalidDraft(t *testing.T) {
	m, rs, _ := newTestManager(t)

	if _, err := m.AddTask(context.Background(), task.Draft{Title: "   "}); err == nil {
		t.Fatal("expected error for blank title")
	}
	if len(m.GetSnapshot()) != 0 {
		t.Error("invalid draft touched the snapshot")
	}
	if _, ins, _, _ := rs.calls(); ins != 0 {
		t.Error("invalid draft reached the remote store")
	}
}

func TestUpdateTaskReconciles(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.AddTask(ctx, task.Draft{Title: "Before"})
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	title := "After"
	status := task.StatusDone
	updated, err := m.UpdateTask(ctx, created.ID, task.Patch{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Title != "After" || updated.Status != task.StatusDone {
		t.Errorf("confirmed row = %+v", updated)
	}

	snap := m.GetSnapshot()
	if snap[0].Title != "After" || !snap[0].Completed {
		t.Errorf("snapshot not reconciled: %+v", snap[0])
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	m, rs, _ := newTestManager(t)

	before := m.GetSnapshot()
	_, err := m.UpdateTask(context.Background(), "missing", task.Patch{})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if !reflect.DeepEqual(before, m.GetSnapshot()) {
		t.Error("snapshot mutated by failed lookup")
	}
	if _, _, upd, _ := rs.calls(); upd != 0 {
		t.Error("remote update attempted for missing task")
	}
}

func TestUpdateTaskRollbackOnRemoteFailure(t *testing.T) {
	m, rs, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.AddTask(ctx, task.Draft{Title: "A"})
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	before := m.GetSnapshot()

	rs.failUpdate = true
	title := "B"
	if _, err := m.UpdateTask(ctx, created.ID, task.Patch{Title: &title}); err == nil {
		t.Fatal("expected UpdateTask to fail")
	}

	after := m.GetSnapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("rollback incomplete:\nbefore=%+v\nafter=%+v", before, after)
	}
	if after[0].Title != "A" {
		t.Errorf("title = %q, want rollback to %q", after[0].Title, "A")
	}
}

func TestDeleteTempTaskSkipsRemote(t *testing.T) {
	m, rs, _ := newTestManager(t)

	// Put a temp task in the snapshot directly, as an interrupted creation
	// flow would leave it.
	temp := task.FromDraft(task.Draft{Title: "Half-created"})
	m.SetSnapshot([]task.Task{temp})

	if err := m.DeleteTask(context.Background(), temp.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if len(m.GetSnapshot()) != 0 {
		t.Error("temp task still in snapshot")
	}
	if _, _, _, del := rs.calls(); del != 0 {
		t.Error("remote delete issued for temp task")
	}
}

func TestDeleteTaskRollbackOnRemoteFailure(t *testing.T) {
	m, rs, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.AddTask(ctx, task.Draft{Title: "Keep me"})
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	before := m.GetSnapshot()

	rs.failDelete = true
	if err := m.DeleteTask(ctx, created.ID); err == nil {
		t.Fatal("expected DeleteTask to fail")
	}

	if !reflect.DeepEqual(before, m.GetSnapshot()) {
		t.Error("task did not reappear after failed remote delete")
	}
}

func TestDeleteTaskNotFound(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.DeleteTask(context.Background(), "missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestBackgroundSyncSkipsWhenFresh(t *testing.T) {
	m, rs, _ := newTestManager(t)
	ctx := context.Background()

	m.BackgroundSync(ctx) // first call: no snapshot yet, must fetch
	m.BackgroundSync(ctx) // fresh now, must not fetch

	if fetch, _, _, _ := rs.calls(); fetch != 1 {
		t.Errorf("fetch calls = %d, want 1", fetch)
	}
}

func TestBackgroundSyncForcedByStaleness(t *testing.T) {
	rs := newMockRemote()
	m := NewManager("u1", localstore.NewMemory(), rs, Options{
		Logger:     testLogger(t),
		StaleAfter: time.Millisecond,
	})
	ctx := context.Background()

	m.BackgroundSync(ctx)
	time.Sleep(5 * time.Millisecond)
	m.BackgroundSync(ctx)

	if fetch, _, _, _ := rs.calls(); fetch != 2 {
		t.Errorf("fetch calls = %d, want 2", fetch)
	}
}

func TestBackgroundSyncSwallowsFailure(t *testing.T) {
	m, rs, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.AddTask(ctx, task.Draft{Title: "Cached"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	rs.failFetch = true
	// Force staleness by clearing the synced time through Clear/SetSnapshot
	// is heavy; ForceSync exercises the same swallow path unconditionally.
	got := m.ForceSync(ctx)
	if len(got) != 1 || got[0].Title != "Cached" {
		t.Errorf("failed sync did not return last good snapshot: %+v", got)
	}
	if m.LastError() == nil {
		t.Error("advisory error not recorded")
	}

	rs.failFetch = false
	m.ForceSync(ctx)
	if m.LastError() != nil {
		t.Error("advisory error not cleared by successful sync")
	}
}

func TestConcurrentSyncsCollapse(t *testing.T) {
	m, rs, _ := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ForceSync(ctx)
		}()
	}
	wg.Wait()

	if fetch, _, _, _ := rs.calls(); fetch > 8 {
		t.Errorf("fetch calls = %d, want deduplicated", fetch)
	}
	if fetch, _, _, _ := rs.calls(); fetch < 1 {
		t.Error("no fetch performed")
	}
}

func TestListenersNotifiedPerSetSnapshot(t *testing.T) {
	m, _, _ := newTestManager(t)

	count := 0
	id := m.AddListener(func() { count++ })
	defer m.RemoveListener(id)

	m.SetSnapshot(nil)
	m.SetSnapshot(nil)
	if count != 2 {
		t.Errorf("listener invoked %d times, want 2", count)
	}

	m.RemoveListener(id)
	m.SetSnapshot(nil)
	if count != 2 {
		t.Errorf("removed listener still invoked: %d", count)
	}
}

func TestPanickingListenerIsolated(t *testing.T) {
	m, _, _ := newTestManager(t)

	secondRan := false
	m.AddListener(func() { panic("broken observer") })
	m.AddListener(func() { secondRan = true })

	m.SetSnapshot(nil)
	if !secondRan {
		t.Error("panicking listener prevented later listener from running")
	}
}

func TestSnapshotRoundTripThroughLocalStore(t *testing.T) {
	rs := newMockRemote()
	ls := localstore.NewMemory()
	m1 := NewManager("u1", ls, rs, Options{Logger: testLogger(t)})

	due := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	tasks := []task.Task{
		{ID: task.NewID(), Title: "A", Priority: task.PriorityHigh, Status: task.StatusTodo,
			DueDate: &due, CreatedAt: time.Now().Truncate(time.Second), UpdatedAt: time.Now().Truncate(time.Second)},
		{ID: task.NewID(), Title: "B", Priority: task.PriorityLow, Status: task.StatusDone,
			CreatedAt: time.Now().Truncate(time.Second), UpdatedAt: time.Now().Truncate(time.Second)},
	}
	m1.SetSnapshot(tasks)

	// Fresh manager over the same store simulates the next process start.
	m2 := NewManager("u1", ls, rs, Options{Logger: testLogger(t)})
	got := m2.GetSnapshot()
	if len(got) != 2 {
		t.Fatalf("got %d tasks, want 2", len(got))
	}
	if got[0].Title != "A" || got[1].Title != "B" {
		t.Errorf("order not preserved: %q, %q", got[0].Title, got[1].Title)
	}
	if got[0].DueDate == nil || !got[0].DueDate.Equal(due) {
		t.Errorf("due date did not survive serialization: %v", got[0].DueDate)
	}
}

func TestInstantLoadFromWarmStore(t *testing.T) {
	rs := newMockRemote()
	ls := localstore.NewMemory()

	now := time.Now()
	warm := &localstore.Snapshot{
		UserID:   "u1",
		SyncedAt: now.Add(-10 * time.Second),
		Tasks: []task.Task{
			{ID: task.NewID(), Title: "1", Priority: task.PriorityMedium, Status: task.StatusTodo, CreatedAt: now, UpdatedAt: now},
			{ID: task.NewID(), Title: "2", Priority: task.PriorityMedium, Status: task.StatusTodo, CreatedAt: now, UpdatedAt: now},
			{ID: task.NewID(), Title: "3", Priority: task.PriorityMedium, Status: task.StatusTodo, CreatedAt: now, UpdatedAt: now},
		},
	}
	if err := ls.Write("u1", warm); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	m := NewManager("u1", ls, rs, Options{Logger: testLogger(t)})

	// First synchronous read must already see all three tasks.
	if got := m.GetSnapshot(); len(got) != 3 {
		t.Fatalf("first read saw %d tasks, want 3", len(got))
	}
	if fetch, _, _, _ := rs.calls(); fetch != 0 {
		t.Error("construction must not hit the remote store")
	}
	if m.NeedsRefresh() || m.IsStale() {
		t.Error("10-second-old snapshot misreported as stale")
	}
}

func TestCrossUserSnapshotDiscarded(t *testing.T) {
	rs := newMockRemote()
	ls := localstore.NewMemory()

	now := time.Now()
	foreign := &localstore.Snapshot{
		UserID:   "u1",
		SyncedAt: now,
		Tasks: []task.Task{
			{ID: task.NewID(), Title: "not yours", Priority: task.PriorityMedium, Status: task.StatusTodo, CreatedAt: now, UpdatedAt: now},
		},
	}
	// Simulate a corrupt slot: u2's key holds u1's snapshot.
	if err := ls.Write("u2", foreign); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	m := NewManager("u2", ls, rs, Options{Logger: testLogger(t)})
	if got := m.GetSnapshot(); len(got) != 0 {
		t.Errorf("foreign snapshot served: %+v", got)
	}
	if _, ok := ls.Read("u2"); ok {
		t.Error("mismatched snapshot not cleared from local store")
	}
	if m.Age() != AgeInfinite {
		t.Error("discarded snapshot should leave age infinite")
	}
}

func TestClearEmptiesAndNotifies(t *testing.T) {
	m, _, ls := newTestManager(t)

	if _, err := m.AddTask(context.Background(), task.Draft{Title: "gone soon"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	notified := false
	m.AddListener(func() { notified = true })

	m.Clear()
	if len(m.GetSnapshot()) != 0 {
		t.Error("snapshot not empty after Clear")
	}
	if !notified {
		t.Error("listeners not notified by Clear")
	}
	if _, ok := ls.Read("u1"); ok {
		t.Error("durable snapshot not removed by Clear")
	}
	if m.Age() != AgeInfinite {
		t.Error("age not reset by Clear")
	}
}

func TestPurgeTempTasks(t *testing.T) {
	m, _, _ := newTestManager(t)

	now := time.Now()
	durable := task.Task{ID: task.NewID(), Title: "keep", Priority: task.PriorityMedium,
		Status: task.StatusTodo, CreatedAt: now, UpdatedAt: now}
	m.SetSnapshot([]task.Task{
		task.FromDraft(task.Draft{Title: "stray one"}),
		durable,
		task.FromDraft(task.Draft{Title: "stray two"}),
	})

	if n := m.PurgeTempTasks(); n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	snap := m.GetSnapshot()
	if len(snap) != 1 || snap[0].ID != durable.ID {
		t.Errorf("snapshot after purge: %+v", snap)
	}

	if n := m.PurgeTempTasks(); n != 0 {
		t.Errorf("second purge removed %d", n)
	}
}

func TestRegistryReusesAndClears(t *testing.T) {
	rs := newMockRemote()
	reg := NewRegistry(localstore.NewMemory(), rs, Options{Logger: testLogger(t)})

	a := reg.Get("u1")
	b := reg.Get("u1")
	if a != b {
		t.Error("registry created two managers for one user")
	}
	if reg.Get("u2") == a {
		t.Error("distinct users share a manager")
	}
	if reg.Size() != 2 {
		t.Errorf("size = %d, want 2", reg.Size())
	}

	reg.Clear()
	if reg.Size() != 0 {
		t.Error("Clear left managers behind")
	}
	if reg.Get("u1") == a {
		t.Error("manager survived Clear")
	}
}

func TestGetSnapshotIsolatedFromCallerMutation(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.AddTask(context.Background(), task.Draft{Title: "original", Tags: []string{"a"}}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	snap := m.GetSnapshot()
	snap[0].Title = "mutated"
	snap[0].Tags[0] = "z"

	again := m.GetSnapshot()
	if again[0].Title != "original" || again[0].Tags[0] != "a" {
		t.Error("caller mutation leaked into cache state")
	}
}
