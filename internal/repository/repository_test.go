package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"taskdeck/internal/connectivity"
	"taskdeck/internal/domain"
	"taskdeck/internal/store"
	"taskdeck/internal/store/memory"
)

func newTestRepo(t *testing.T) (*Repository, *memory.Store, *connectivity.StaticMonitor) {
	t.Helper()
	st := memory.New()
	monitor := connectivity.NewStaticMonitor(true)
	repo := New(st, monitor, nil, zap.NewNop())
	return repo, st, monitor
}

func validTask(title string) domain.Task {
	return domain.Task{
		Title:     title,
		Category:  domain.CategoryWork,
		Priority:  domain.PriorityMedium,
		Status:    domain.StatusTodo,
		Timeframe: domain.TimeframeDaily,
	}
}

// waitFor polls until cond holds or the deadline passes. Snapshot delivery is
// asynchronous, so tests observe effects rather than ordering.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBindRequiresUserID(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	err := repo.Bind(context.Background(), "")
	if !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("Bind(\"\") error = %v, expected ErrAuthRequired", err)
	}
}

func TestBindReachesLive(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()

	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if repo.State() != StateLive {
		t.Errorf("State() = %v, expected live", repo.State())
	}
	if repo.UserID() != "alice" {
		t.Errorf("UserID() = %v, expected alice", repo.UserID())
	}

	waitFor(t, func() bool { return !repo.Loading() })
	if repo.LastError() != nil {
		t.Errorf("LastError() = %v, expected nil", repo.LastError())
	}
}

func TestAddTaskAppearsInSnapshot(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()

	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	est := 2.5
	task := validTask("Write docs")
	task.Tags = []string{"writing"}
	task.Estimate = &est
	task.Subtasks = []domain.Subtask{{Title: "Outline"}}

	created, err := repo.AddTask(context.Background(), task)
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("AddTask() returned empty id")
	}
	if created.UserID != "alice" {
		t.Errorf("created.UserID = %v, expected alice", created.UserID)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("CreatedAt (%v) != UpdatedAt (%v) on create", created.CreatedAt, created.UpdatedAt)
	}
	if len(created.Subtasks) != 1 || created.Subtasks[0].ID == "" {
		t.Errorf("subtasks not normalized: %+v", created.Subtasks)
	}

	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })

	got := repo.Tasks()[0]
	if got.ID != created.ID {
		t.Errorf("snapshot task id = %v, expected %v", got.ID, created.ID)
	}
	if got.Title != "Write docs" {
		t.Errorf("snapshot task title = %v, expected Write docs", got.Title)
	}
	if got.Estimate == nil || *got.Estimate != est {
		t.Errorf("snapshot task estimate = %v, expected %v", got.Estimate, est)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "writing" {
		t.Errorf("snapshot task tags = %v, expected [writing]", got.Tags)
	}

	stats := repo.Stats()
	if stats.Total != 1 || stats.ByCategory[domain.CategoryWork] != 1 {
		t.Errorf("stats not recomputed: %+v", stats)
	}
}

func TestAddTaskUnbound(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	_, err := repo.AddTask(context.Background(), validTask("nope"))
	if !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("AddTask() error = %v, expected ErrAuthRequired", err)
	}
}

func TestAddTaskInvalid(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	task := validTask("bad")
	task.Category = "chores"
	if _, err := repo.AddTask(context.Background(), task); !errors.Is(err, domain.ErrBadParamInput) {
		t.Errorf("AddTask() error = %v, expected ErrBadParamInput", err)
	}
	if len(repo.Tasks()) != 0 {
		t.Error("invalid task reached the store")
	}
}

func TestUpdateTaskStampsUpdatedAt(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	created, err := repo.AddTask(context.Background(), validTask("original"))
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })

	time.Sleep(10 * time.Millisecond)

	status := domain.StatusInProgress
	if err := repo.UpdateTask(context.Background(), created.ID, domain.TaskPatch{Status: &status}); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	waitFor(t, func() bool {
		tasks := repo.Tasks()
		return len(tasks) == 1 && tasks[0].Status == domain.StatusInProgress
	})

	got := repo.Tasks()[0]
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt (%v) not after CreatedAt (%v)", got.UpdatedAt, got.CreatedAt)
	}
	if got.Title != "original" {
		t.Errorf("unpatched field changed: title = %v", got.Title)
	}
}

func TestUpdateTaskClearsEstimate(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	est := 4.0
	task := validTask("estimated")
	task.Estimate = &est
	created, err := repo.AddTask(context.Background(), task)
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool {
		tasks := repo.Tasks()
		return len(tasks) == 1 && tasks[0].Estimate != nil
	})

	patch := domain.TaskPatch{Estimate: domain.FloatNull()}
	if err := repo.UpdateTask(context.Background(), created.ID, patch); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	waitFor(t, func() bool {
		tasks := repo.Tasks()
		return len(tasks) == 1 && tasks[0].Estimate == nil
	})
}

func TestUpdateTaskNotFound(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	status := domain.StatusCompleted
	err := repo.UpdateTask(context.Background(), "missing", domain.TaskPatch{Status: &status})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateTask() error = %v, expected ErrNotFound", err)
	}
}

func TestDeleteTask(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	created, err := repo.AddTask(context.Background(), validTask("doomed"))
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })

	if err := repo.DeleteTask(context.Background(), created.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	waitFor(t, func() bool { return len(repo.Tasks()) == 0 })

	if repo.Stats().Total != 0 {
		t.Errorf("stats Total = %d after delete, expected 0", repo.Stats().Total)
	}
}

func TestSnapshotErrorKeepsStaleList(t *testing.T) {
	repo, st, _ := newTestRepo(t)
	defer repo.Unbind()
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if _, err := repo.AddTask(context.Background(), validTask("keep me")); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })

	st.EmitError("alice", domain.NewIndexError("query needs an index, see https://example.com/fix"))
	waitFor(t, func() bool { return repo.LastError() != nil })

	if !errors.Is(repo.LastError(), domain.ErrIndexMissing) {
		t.Errorf("LastError() = %v, expected ErrIndexMissing", repo.LastError())
	}
	if got := domain.ExtractRepairURL(repo.LastError()); got != "https://example.com/fix" {
		t.Errorf("repair URL = %q, expected the embedded link", got)
	}
	if len(repo.Tasks()) != 1 {
		t.Errorf("stale list dropped on error: %d tasks", len(repo.Tasks()))
	}

	// A successful push self-heals: the error clears.
	if _, err := repo.AddTask(context.Background(), validTask("healer")); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool { return repo.LastError() == nil })
	if len(repo.Tasks()) != 2 {
		t.Errorf("list = %d tasks after heal, expected 2", len(repo.Tasks()))
	}
}

func TestBindOfflineDisablesNetworkFirst(t *testing.T) {
	st := memory.New()
	monitor := connectivity.NewStaticMonitor(false)
	repo := New(st, monitor, nil, zap.NewNop())
	defer repo.Unbind()

	st.Seed(store.Document{
		store.FieldUserID:    "alice",
		store.FieldTitle:     "hidden while offline",
		store.FieldCategory:  "work",
		store.FieldPriority:  "low",
		store.FieldStatus:    "todo",
		store.FieldTimeframe: "daily",
		store.FieldCreatedAt: time.Now().UTC(),
		store.FieldUpdatedAt: time.Now().UTC(),
	})

	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	// Offline: no initial snapshot, still loading.
	time.Sleep(50 * time.Millisecond)
	if !repo.Loading() {
		t.Error("Loading() = false while offline, expected true")
	}
	if len(repo.Tasks()) != 0 {
		t.Errorf("tasks = %d while offline, expected 0", len(repo.Tasks()))
	}

	monitor.SetOnline(true)
	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })
	if repo.Loading() {
		t.Error("Loading() = true after first snapshot, expected false")
	}
}

func TestConnectivityFlipRetriesFailedAttach(t *testing.T) {
	st := memory.New()
	monitor := connectivity.NewStaticMonitor(true)
	repo := New(st, monitor, nil, zap.NewNop())
	defer repo.Unbind()

	st.FailWatch(errors.New("listener rejected"))
	err := repo.Bind(context.Background(), "alice")
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("Bind() error = %v, expected ErrBackendUnavailable", err)
	}
	if repo.State() != StateSubscribing {
		t.Fatalf("State() = %v after failed attach, expected subscribing", repo.State())
	}
	if repo.LastError() == nil {
		t.Fatal("LastError() = nil after failed attach")
	}

	// A flip to online retries the attach.
	monitor.SetOnline(false)
	monitor.SetOnline(true)
	waitFor(t, func() bool { return repo.State() == StateLive })
}

func TestRebindSwitchesUser(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()

	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind(alice) error = %v", err)
	}
	if _, err := repo.AddTask(context.Background(), validTask("alice's task")); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })

	if err := repo.Bind(context.Background(), "bob"); err != nil {
		t.Fatalf("Bind(bob) error = %v", err)
	}
	waitFor(t, func() bool { return !repo.Loading() })

	if repo.UserID() != "bob" {
		t.Errorf("UserID() = %v, expected bob", repo.UserID())
	}
	if len(repo.Tasks()) != 0 {
		t.Errorf("bob sees %d tasks, expected 0", len(repo.Tasks()))
	}
}

func TestUnbind(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if _, err := repo.AddTask(context.Background(), validTask("gone on unbind")); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })

	repo.Unbind()

	if repo.State() != StateUnsubscribed {
		t.Errorf("State() = %v, expected unsubscribed", repo.State())
	}
	if len(repo.Tasks()) != 0 {
		t.Errorf("tasks retained after unbind: %d", len(repo.Tasks()))
	}

	if _, err := repo.AddTask(context.Background(), validTask("rejected")); !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("AddTask() after Unbind error = %v, expected ErrAuthRequired", err)
	}
}

func TestSubscribeNotifiesOnSnapshot(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	defer repo.Unbind()
	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	ch := repo.Subscribe()
	defer repo.Unsubscribe(ch)

	if _, err := repo.AddTask(context.Background(), validTask("ping")); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after snapshot")
	}
}

type failingCache struct{}

func (failingCache) PutTasks(string, []domain.Task) error { return errors.New("disk full") }
func (failingCache) GetTasks(string) ([]domain.Task, error) {
	return nil, errors.New("disk full")
}

func TestCacheFailuresAreNonFatal(t *testing.T) {
	st := memory.New()
	repo := New(st, connectivity.NewStaticMonitor(true), failingCache{}, zap.NewNop())
	defer repo.Unbind()

	if err := repo.Bind(context.Background(), "alice"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if _, err := repo.AddTask(context.Background(), validTask("survives cache errors")); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	waitFor(t, func() bool { return len(repo.Tasks()) == 1 })
	if repo.LastError() != nil {
		t.Errorf("LastError() = %v, expected nil", repo.LastError())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		expect error
	}{
		{
			name:   "Nil passes through",
			input:  nil,
			expect: nil,
		},
		{
			name:   "Domain error passes through",
			input:  domain.ErrNotFound,
			expect: domain.ErrNotFound,
		},
		{
			name:   "Index mention becomes IndexError",
			input:  errors.New("query requires a composite index at https://example.com/fix"),
			expect: domain.ErrIndexMissing,
		},
		{
			name:   "Unknown becomes backend unavailable",
			input:  errors.New("connection reset"),
			expect: domain.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.input)
			if tt.expect == nil {
				if got != nil {
					t.Errorf("classify() = %v, expected nil", got)
				}
				return
			}
			if !errors.Is(got, tt.expect) {
				t.Errorf("classify() = %v, expected %v", got, tt.expect)
			}
		})
	}
}
