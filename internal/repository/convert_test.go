package repository

import (
	"testing"
	"time"

	"taskdeck/internal/domain"
	"taskdeck/internal/store"
)

func TestDocumentFromTaskEstimateAlwaysPresent(t *testing.T) {
	task := domain.Task{
		UserID:    "alice",
		Title:     "no estimate",
		Category:  domain.CategoryWork,
		Priority:  domain.PriorityLow,
		Status:    domain.StatusTodo,
		Timeframe: domain.TimeframeDaily,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	doc := documentFromTask(&task)
	v, ok := doc[store.FieldEstimate]
	if !ok {
		t.Fatal("estimate key absent from insert document")
	}
	if v != nil {
		t.Errorf("estimate = %v, expected explicit nil", v)
	}

	est := 1.5
	task.Estimate = &est
	doc = documentFromTask(&task)
	if doc[store.FieldEstimate] != 1.5 {
		t.Errorf("estimate = %v, expected 1.5", doc[store.FieldEstimate])
	}

	if _, ok := doc[store.FieldDueDate]; ok {
		t.Error("due_date key present with no due date")
	}
	if _, ok := doc[store.FieldFavorite]; ok {
		t.Error("favorite key present with no favorite flag")
	}
}

func TestDocumentFromPatchDropsAbsentFields(t *testing.T) {
	title := "renamed"
	patch := domain.TaskPatch{Title: &title}

	fields := documentFromPatch(&patch)
	if len(fields) != 1 {
		t.Fatalf("patch document has %d fields, expected 1: %v", len(fields), fields)
	}
	if fields[store.FieldTitle] != "renamed" {
		t.Errorf("title = %v, expected renamed", fields[store.FieldTitle])
	}

	// An absent estimate stays out; a present-but-empty one writes nil.
	if _, ok := fields[store.FieldEstimate]; ok {
		t.Error("estimate key present for absent nullable")
	}

	patch.Estimate = domain.FloatNull()
	fields = documentFromPatch(&patch)
	v, ok := fields[store.FieldEstimate]
	if !ok {
		t.Fatal("estimate key absent for clearing nullable")
	}
	if v != nil {
		t.Errorf("estimate = %v, expected explicit nil", v)
	}
}

func TestTaskFromDocumentCoercesDateShapes(t *testing.T) {
	want := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
	}{
		{name: "Native time", value: want},
		{name: "Structured timestamp", value: domain.Timestamp{Seconds: want.Unix()}},
		{name: "ISO string", value: "2025-03-10T09:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := store.Document{
				store.FieldID:        "t1",
				store.FieldUserID:    "alice",
				store.FieldTitle:     "dated",
				store.FieldCreatedAt: tt.value,
				store.FieldUpdatedAt: tt.value,
				store.FieldDueDate:   tt.value,
			}
			task, err := taskFromDocument(doc)
			if err != nil {
				t.Fatalf("taskFromDocument() error = %v", err)
			}
			if !task.CreatedAt.Equal(want) {
				t.Errorf("CreatedAt = %v, expected %v", task.CreatedAt, want)
			}
			if task.DueDate == nil || !task.DueDate.Equal(want) {
				t.Errorf("DueDate = %v, expected %v", task.DueDate, want)
			}
		})
	}
}

func TestTaskFromDocumentMissingID(t *testing.T) {
	_, err := taskFromDocument(store.Document{store.FieldTitle: "anonymous"})
	if err == nil {
		t.Fatal("taskFromDocument() accepted a document without an id")
	}
}

func TestTaskFromDocumentGenericSubtasks(t *testing.T) {
	doc := store.Document{
		store.FieldID:     "t1",
		store.FieldUserID: "alice",
		store.FieldSubtasks: []any{
			map[string]any{
				"id":         "s1",
				"title":      "decoded from json",
				"completed":  true,
				"created_at": "2025-03-10T09:30:00Z",
			},
		},
	}

	task, err := taskFromDocument(doc)
	if err != nil {
		t.Fatalf("taskFromDocument() error = %v", err)
	}
	if len(task.Subtasks) != 1 {
		t.Fatalf("subtasks = %d, expected 1", len(task.Subtasks))
	}
	sub := task.Subtasks[0]
	if sub.ID != "s1" || !sub.Completed || sub.Title != "decoded from json" {
		t.Errorf("subtask = %+v, expected decoded values", sub)
	}
}

func TestNormalizeSubtasks(t *testing.T) {
	now := time.Now().UTC()
	existing := domain.Subtask{ID: "keep", Title: "already has id", CreatedAt: now.Add(-time.Hour)}
	fresh := domain.Subtask{Title: "needs id"}

	out := normalizeSubtasks([]domain.Subtask{existing, fresh}, now)
	if out[0].ID != "keep" || !out[0].CreatedAt.Equal(existing.CreatedAt) {
		t.Errorf("existing subtask altered: %+v", out[0])
	}
	if out[1].ID == "" {
		t.Error("fresh subtask has no id")
	}
	if !out[1].CreatedAt.Equal(now) {
		t.Errorf("fresh subtask CreatedAt = %v, expected %v", out[1].CreatedAt, now)
	}
}
