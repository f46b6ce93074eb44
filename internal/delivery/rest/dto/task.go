package dto

import (
	"encoding/json"
	"errors"
	"time"

	"taskdeck/internal/domain"
)

// CreateTaskRequest is the POST /tasks body. The caller supplies every field
// except id, owner and timestamps, which the repository injects.
type CreateTaskRequest struct {
	Title       string           `json:"title" binding:"required"`
	Description string           `json:"description"`
	Category    string           `json:"category" binding:"required"`
	Priority    string           `json:"priority" binding:"required"`
	Status      string           `json:"status"`
	DueDate     *FlexTime        `json:"due_date"`
	Tags        []string         `json:"tags"`
	Subtasks    []SubtaskRequest `json:"subtasks"`
	Timeframe   string           `json:"timeframe"`
	Estimate    *float64         `json:"estimate"`
	Favorite    *bool            `json:"favorite"`
}

// SubtaskRequest is a checklist item in a create or update body
type SubtaskRequest struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// ToModel converts the request to a domain task, applying defaults for the
// optional enums
func (r *CreateTaskRequest) ToModel() domain.Task {
	t := domain.Task{
		Title:       r.Title,
		Description: r.Description,
		Category:    domain.Category(r.Category),
		Priority:    domain.Priority(r.Priority),
		Status:      domain.Status(r.Status),
		Timeframe:   domain.Timeframe(r.Timeframe),
		Tags:        r.Tags,
		Estimate:    r.Estimate,
		Favorite:    r.Favorite,
	}
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if t.Timeframe == "" {
		t.Timeframe = domain.TimeframeDaily
	}
	if r.DueDate != nil && !r.DueDate.IsZero() {
		due := r.DueDate.Time
		t.DueDate = &due
	}
	for _, sub := range r.Subtasks {
		t.Subtasks = append(t.Subtasks, domain.Subtask{
			ID:        sub.ID,
			Title:     sub.Title,
			Completed: sub.Completed,
		})
	}
	return t
}

// UpdateTaskRequest is the PATCH /tasks/:id body. Nil fields were absent
// from the request and are omitted from the write. Estimate tracks presence
// separately: "estimate": null clears the stored value.
type UpdateTaskRequest struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Category    *string           `json:"category"`
	Priority    *string           `json:"priority"`
	Status      *string           `json:"status"`
	DueDate     *FlexTime         `json:"due_date"`
	Tags        *[]string         `json:"tags"`
	Subtasks    *[]SubtaskRequest `json:"subtasks"`
	Timeframe   *string           `json:"timeframe"`
	Estimate    NullableNumber    `json:"estimate"`
	Favorite    *bool             `json:"favorite"`
}

// ToPatch converts the request to a domain patch
func (r *UpdateTaskRequest) ToPatch() domain.TaskPatch {
	var p domain.TaskPatch
	p.Title = r.Title
	p.Description = r.Description
	if r.Category != nil {
		c := domain.Category(*r.Category)
		p.Category = &c
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	if r.Status != nil {
		s := domain.Status(*r.Status)
		p.Status = &s
	}
	if r.DueDate != nil && !r.DueDate.IsZero() {
		due := r.DueDate.Time
		p.DueDate = &due
	}
	p.Tags = r.Tags
	if r.Subtasks != nil {
		subs := make([]domain.Subtask, 0, len(*r.Subtasks))
		for _, sub := range *r.Subtasks {
			subs = append(subs, domain.Subtask{
				ID:        sub.ID,
				Title:     sub.Title,
				Completed: sub.Completed,
			})
		}
		p.Subtasks = &subs
	}
	if r.Timeframe != nil {
		tf := domain.Timeframe(*r.Timeframe)
		p.Timeframe = &tf
	}
	p.Estimate = domain.NullableFloat{Present: r.Estimate.Present, Value: r.Estimate.Value}
	p.Favorite = r.Favorite
	return p
}

// TaskListResponse is the GET /tasks payload: the live list plus the
// subscription state the view needs
type TaskListResponse struct {
	Tasks     []domain.Task `json:"tasks"`
	Total     int           `json:"total"`
	Loading   bool          `json:"loading"`
	LastError *ErrorInfo    `json:"last_error,omitempty"`
}

// ErrorInfo describes a captured subscription error in general terms
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RepairURL string `json:"repair_url,omitempty"`
}

// NewErrorInfo maps a domain error to its wire form. Messages stay generic;
// store internals are not leaked to clients.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrIndexMissing):
		return &ErrorInfo{
			Code:      "index_missing",
			Message:   "The backend is missing a required index",
			RepairURL: domain.ExtractRepairURL(err),
		}
	case errors.Is(err, domain.ErrPermissionDenied):
		return &ErrorInfo{Code: "permission_denied", Message: "Permission denied"}
	case errors.Is(err, domain.ErrAuthRequired):
		return &ErrorInfo{Code: "auth_required", Message: "Sign in required"}
	default:
		return &ErrorInfo{Code: "backend_unavailable", Message: "The backend is temporarily unavailable"}
	}
}

// StatsResponse is the GET /tasks/stats payload: the derived aggregate plus
// the implicit todo count spelled out
type StatsResponse struct {
	domain.Statistics
	Todo int `json:"todo"`
}

// ErrorResponse is the error envelope for failed requests
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NullableNumber distinguishes an absent JSON key from an explicit null.
// The zero value means the key was absent.
type NullableNumber struct {
	Present bool
	Value   *float64
}

// UnmarshalJSON records presence; a JSON null leaves Value nil
func (n *NullableNumber) UnmarshalJSON(b []byte) error {
	n.Present = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// MarshalJSON round-trips the stored state
func (n NullableNumber) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// FlexTime wraps time.Time to accept the datetime formats clients send
type FlexTime struct {
	time.Time
}

// flexFormats without a zone are parsed as UTC
var flexFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON parses a JSON string into FlexTime, trying each supported
// format in order
func (ft *FlexTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var lastErr error
	for _, layout := range flexFormats {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			ft.Time = t.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON formats the time as RFC3339 UTC
func (ft FlexTime) MarshalJSON() ([]byte, error) {
	if ft.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ft.UTC().Format(time.RFC3339))
}
