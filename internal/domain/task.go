package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category groups tasks into one of five fixed buckets
type Category string

const (
	CategoryCodeTasks Category = "code-tasks"
	CategoryLearning  Category = "learning"
	CategoryWork      Category = "work"
	CategoryPersonal  Category = "personal"
	CategoryHealth    Category = "health"
)

// Categories lists every valid category in display order
var Categories = []Category{
	CategoryCodeTasks,
	CategoryLearning,
	CategoryWork,
	CategoryPersonal,
	CategoryHealth,
}

// Priority represents the urgency of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every valid priority from least to most urgent
var Priorities = []Priority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityUrgent,
}

// Status represents the current state of a task.
// Transitions are unconstrained: any status may move to any other.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// Timeframe represents the planning horizon a task belongs to
type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
	TimeframeYearly  Timeframe = "yearly"
)

// Subtask is a checklist item nested inside a task
type Subtask struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a single user-owned unit of work.
// ID, UserID and CreatedAt are immutable after creation; UpdatedAt is
// refreshed on every mutation by the repository, never by callers.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Tags        []string   `json:"tags,omitempty"`
	Subtasks    []Subtask  `json:"subtasks,omitempty"`
	Timeframe   Timeframe  `json:"timeframe"`
	Estimate    *float64   `json:"estimate,omitempty"`
	Favorite    *bool      `json:"favorite,omitempty"`
}

// IsOverdue reports whether the task's due date has passed without completion
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusCompleted
}

// CreatedWithin reports whether the task was created inside the trailing window
func (t *Task) CreatedWithin(window time.Duration, now time.Time) bool {
	return t.CreatedAt.After(now.Add(-window))
}

// Validate checks the fields a caller controls on create
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrBadParamInput)
	}
	if !ValidCategory(t.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrBadParamInput, t.Category)
	}
	if !ValidPriority(t.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrBadParamInput, t.Priority)
	}
	if !ValidStatus(t.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrBadParamInput, t.Status)
	}
	if !ValidTimeframe(t.Timeframe) {
		return fmt.Errorf("%w: unknown timeframe %q", ErrBadParamInput, t.Timeframe)
	}
	if t.Estimate != nil && *t.Estimate < 0 {
		return fmt.Errorf("%w: estimate must be non-negative", ErrBadParamInput)
	}
	return nil
}

// ValidCategory reports whether c is one of the five fixed categories
func ValidCategory(c Category) bool {
	switch c {
	case CategoryCodeTasks, CategoryLearning, CategoryWork, CategoryPersonal, CategoryHealth:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known status
func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// ValidTimeframe reports whether tf is a known timeframe
func ValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TimeframeDaily, TimeframeWeekly, TimeframeMonthly, TimeframeYearly:
		return true
	}
	return false
}

// NullableFloat distinguishes a patch field that was not included from one
// included with no value. Included-but-empty writes an explicit NULL, which
// clears the stored value; not included omits the field from the write.
type NullableFloat struct {
	Present bool
	Value   *float64
}

// FloatValue returns a NullableFloat carrying v
func FloatValue(v float64) NullableFloat {
	return NullableFloat{Present: true, Value: &v}
}

// FloatNull returns a NullableFloat that clears the stored value
func FloatNull() NullableFloat {
	return NullableFloat{Present: true}
}

// TaskPatch is a partial field set for updates. Nil pointer fields are
// dropped from the outgoing write; UpdatedAt is always stamped by the
// repository regardless of the patch contents.
type TaskPatch struct {
	Title       *string
	Description *string
	Category    *Category
	Priority    *Priority
	Status      *Status
	DueDate     *time.Time
	Tags        *[]string
	Subtasks    *[]Subtask
	Timeframe   *Timeframe
	Estimate    NullableFloat
	Favorite    *bool
}

// Empty reports whether the patch carries no fields at all
func (p *TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Priority == nil && p.Status == nil && p.DueDate == nil &&
		p.Tags == nil && p.Subtasks == nil && p.Timeframe == nil &&
		!p.Estimate.Present && p.Favorite == nil
}

// Validate checks the fields present in the patch
func (p *TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrBadParamInput)
	}
	if p.Category != nil && !ValidCategory(*p.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrBadParamInput, *p.Category)
	}
	if p.Priority != nil && !ValidPriority(*p.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrBadParamInput, *p.Priority)
	}
	if p.Status != nil && !ValidStatus(*p.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrBadParamInput, *p.Status)
	}
	if p.Timeframe != nil && !ValidTimeframe(*p.Timeframe) {
		return fmt.Errorf("%w: unknown timeframe %q", ErrBadParamInput, *p.Timeframe)
	}
	if p.Estimate.Present && p.Estimate.Value != nil && *p.Estimate.Value < 0 {
		return fmt.Errorf("%w: estimate must be non-negative", ErrBadParamInput)
	}
	return nil
}
