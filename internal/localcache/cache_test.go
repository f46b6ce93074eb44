package localcache

import (
	"path/filepath"
	"testing"
	"time"

	"taskdeck/internal/domain"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") succeeded, expected error")
	}
}

func TestTasksRoundTrip(t *testing.T) {
	c := openTestCache(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	est := 3.0

	tasks := []domain.Task{
		{
			ID:        "t1",
			UserID:    "alice",
			Title:     "Cached task",
			Category:  domain.CategoryLearning,
			Priority:  domain.PriorityHigh,
			Status:    domain.StatusInProgress,
			CreatedAt: now,
			UpdatedAt: now,
			Tags:      []string{"go", "sqlite"},
			Estimate:  &est,
			Subtasks:  []domain.Subtask{{ID: "s1", Title: "step one", CreatedAt: now}},
			Timeframe: domain.TimeframeWeekly,
		},
	}

	if err := c.PutTasks("alice", tasks); err != nil {
		t.Fatalf("PutTasks() error = %v", err)
	}

	got, err := c.GetTasks("alice")
	if err != nil {
		t.Fatalf("GetTasks() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetTasks() returned %d tasks, expected 1", len(got))
	}
	if got[0].ID != "t1" || got[0].Title != "Cached task" {
		t.Errorf("task = %+v, expected cached values", got[0])
	}
	if got[0].Estimate == nil || *got[0].Estimate != est {
		t.Errorf("estimate = %v, expected %v", got[0].Estimate, est)
	}
	if !got[0].CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, expected %v", got[0].CreatedAt, now)
	}
	if len(got[0].Subtasks) != 1 || got[0].Subtasks[0].ID != "s1" {
		t.Errorf("subtasks = %+v, expected cached subtask", got[0].Subtasks)
	}
}

func TestPutTasksReplaces(t *testing.T) {
	c := openTestCache(t)

	if err := c.PutTasks("alice", []domain.Task{{ID: "old"}}); err != nil {
		t.Fatalf("PutTasks() error = %v", err)
	}
	if err := c.PutTasks("alice", []domain.Task{{ID: "new1"}, {ID: "new2"}}); err != nil {
		t.Fatalf("second PutTasks() error = %v", err)
	}

	got, err := c.GetTasks("alice")
	if err != nil {
		t.Fatalf("GetTasks() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "new1" {
		t.Errorf("GetTasks() = %+v, expected the replacement list", got)
	}
}

func TestGetTasksUnknownUser(t *testing.T) {
	c := openTestCache(t)
	got, err := c.GetTasks("nobody")
	if err != nil {
		t.Fatalf("GetTasks() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetTasks() = %v, expected nil for unknown user", got)
	}
}

func TestPreferences(t *testing.T) {
	c := openTestCache(t)

	if v, err := c.GetPreference("alice", "theme"); err != nil || v != "" {
		t.Fatalf("GetPreference() unset = (%q, %v), expected empty", v, err)
	}

	if err := c.SetPreference("alice", "theme", "dark"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}
	if err := c.SetPreference("alice", "theme", "light"); err != nil {
		t.Fatalf("SetPreference() overwrite error = %v", err)
	}

	v, err := c.GetPreference("alice", "theme")
	if err != nil {
		t.Fatalf("GetPreference() error = %v", err)
	}
	if v != "light" {
		t.Errorf("GetPreference() = %q, expected light", v)
	}
}
