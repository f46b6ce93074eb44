package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/domain"
	"taskdeck/internal/store"
)

// documentFromTask builds the full insert document for a new task. Dates go
// out as UTC time values; the estimate key is always present, carrying an
// explicit nil when the task has none.
func documentFromTask(t *domain.Task) store.Document {
	doc := store.Document{
		store.FieldUserID:      t.UserID,
		store.FieldTitle:       t.Title,
		store.FieldDescription: t.Description,
		store.FieldCategory:    string(t.Category),
		store.FieldPriority:    string(t.Priority),
		store.FieldStatus:      string(t.Status),
		store.FieldCreatedAt:   t.CreatedAt.UTC(),
		store.FieldUpdatedAt:   t.UpdatedAt.UTC(),
		store.FieldTimeframe:   string(t.Timeframe),
		store.FieldTags:        append([]string(nil), t.Tags...),
		store.FieldSubtasks:    append([]domain.Subtask(nil), t.Subtasks...),
	}

	if t.DueDate != nil {
		doc[store.FieldDueDate] = t.DueDate.UTC()
	}
	if t.Estimate != nil {
		doc[store.FieldEstimate] = *t.Estimate
	} else {
		doc[store.FieldEstimate] = nil
	}
	if t.Favorite != nil {
		doc[store.FieldFavorite] = *t.Favorite
	}
	return doc
}

// documentFromPatch builds the partial update document: only the fields the
// patch carries, with nil pointers dropped entirely. The estimate nullable
// writes an explicit nil when included without a value.
func documentFromPatch(p *domain.TaskPatch) store.Document {
	fields := store.Document{}

	if p.Title != nil {
		fields[store.FieldTitle] = *p.Title
	}
	if p.Description != nil {
		fields[store.FieldDescription] = *p.Description
	}
	if p.Category != nil {
		fields[store.FieldCategory] = string(*p.Category)
	}
	if p.Priority != nil {
		fields[store.FieldPriority] = string(*p.Priority)
	}
	if p.Status != nil {
		fields[store.FieldStatus] = string(*p.Status)
	}
	if p.DueDate != nil {
		fields[store.FieldDueDate] = p.DueDate.UTC()
	}
	if p.Tags != nil {
		fields[store.FieldTags] = append([]string(nil), (*p.Tags)...)
	}
	if p.Subtasks != nil {
		fields[store.FieldSubtasks] = normalizeSubtasks(*p.Subtasks, time.Now().UTC())
	}
	if p.Timeframe != nil {
		fields[store.FieldTimeframe] = string(*p.Timeframe)
	}
	if p.Estimate.Present {
		if p.Estimate.Value != nil {
			fields[store.FieldEstimate] = *p.Estimate.Value
		} else {
			fields[store.FieldEstimate] = nil
		}
	}
	if p.Favorite != nil {
		fields[store.FieldFavorite] = *p.Favorite
	}
	return fields
}

// normalizeSubtasks assigns ids and creation times the caller left blank
func normalizeSubtasks(subs []domain.Subtask, now time.Time) []domain.Subtask {
	out := make([]domain.Subtask, len(subs))
	for i, sub := range subs {
		if sub.ID == "" {
			sub.ID = uuid.New().String()
		}
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = now
		}
		out[i] = sub
	}
	return out
}

// taskFromDocument maps a raw document to a Task. Date fields are coerced
// from whichever shape the write path produced; missing dates are absent,
// not errors. A document without an id is malformed and rejected.
func taskFromDocument(doc store.Document) (domain.Task, error) {
	id, _ := doc[store.FieldID].(string)
	if id == "" {
		return domain.Task{}, fmt.Errorf("document missing id")
	}

	t := domain.Task{ID: id}
	t.UserID, _ = doc[store.FieldUserID].(string)
	t.Title, _ = doc[store.FieldTitle].(string)
	t.Description, _ = doc[store.FieldDescription].(string)

	if s, ok := doc[store.FieldCategory].(string); ok {
		t.Category = domain.Category(s)
	}
	if s, ok := doc[store.FieldPriority].(string); ok {
		t.Priority = domain.Priority(s)
	}
	if s, ok := doc[store.FieldStatus].(string); ok {
		t.Status = domain.Status(s)
	}
	if s, ok := doc[store.FieldTimeframe].(string); ok {
		t.Timeframe = domain.Timeframe(s)
	}

	created, err := domain.CoerceTime(doc[store.FieldCreatedAt])
	if err != nil {
		return domain.Task{}, fmt.Errorf("document %s: created_at: %w", id, err)
	}
	if created != nil {
		t.CreatedAt = *created
	}

	updated, err := domain.CoerceTime(doc[store.FieldUpdatedAt])
	if err != nil {
		return domain.Task{}, fmt.Errorf("document %s: updated_at: %w", id, err)
	}
	if updated != nil {
		t.UpdatedAt = *updated
	}

	due, err := domain.CoerceTime(doc[store.FieldDueDate])
	if err != nil {
		return domain.Task{}, fmt.Errorf("document %s: due_date: %w", id, err)
	}
	t.DueDate = due

	t.Tags = coerceTags(doc[store.FieldTags])

	subs, err := coerceSubtasks(doc[store.FieldSubtasks])
	if err != nil {
		return domain.Task{}, fmt.Errorf("document %s: subtasks: %w", id, err)
	}
	t.Subtasks = subs

	if est := coerceFloat(doc[store.FieldEstimate]); est != nil {
		t.Estimate = est
	}
	if fav, ok := doc[store.FieldFavorite].(bool); ok {
		t.Favorite = &fav
	}
	return t, nil
}

func coerceTags(v any) []string {
	switch tags := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), tags...)
	case []any:
		out := make([]string, 0, len(tags))
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// coerceSubtasks accepts both the typed slice our own writes produce and the
// generic maps a JSON column decodes to
func coerceSubtasks(v any) ([]domain.Subtask, error) {
	switch subs := v.(type) {
	case nil:
		return nil, nil
	case []domain.Subtask:
		return append([]domain.Subtask(nil), subs...), nil
	case []any:
		out := make([]domain.Subtask, 0, len(subs))
		for _, raw := range subs {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("unexpected subtask shape %T", raw)
			}
			var sub domain.Subtask
			sub.ID, _ = m["id"].(string)
			sub.Title, _ = m["title"].(string)
			sub.Completed, _ = m["completed"].(bool)
			created, err := domain.CoerceTime(m["created_at"])
			if err != nil {
				return nil, err
			}
			if created != nil {
				sub.CreatedAt = *created
			}
			out = append(out, sub)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected subtasks type %T", v)
	}
}

func coerceFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case *float64:
		return n
	default:
		return nil
	}
}
