// Package store defines the contract between the task repository and the
// remote document store backing it. Implementations push full-list snapshots
// over a subscription; the repository never merges partial updates.
package store

import "context"

// Document is the raw wire form of a task: snake_case keys, with date
// fields in any of the shapes domain.CoerceTime accepts.
type Document map[string]any

// Document field keys
const (
	FieldID          = "id"
	FieldUserID      = "user_id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldPriority    = "priority"
	FieldStatus      = "status"
	FieldDueDate     = "due_date"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
	FieldTags        = "tags"
	FieldSubtasks    = "subtasks"
	FieldTimeframe   = "timeframe"
	FieldEstimate    = "estimate"
	FieldFavorite    = "favorite"
)

// Query selects the watched document set: exact match on the owner,
// ordered by creation time descending. The store must hold a composite
// index for this shape; its absence surfaces as an index-missing error.
type Query struct {
	UserID string
}

// Snapshot is one full replacement of the watched document list, or an
// in-band error. An errored snapshot carries no documents; the subscription
// stays attached and may deliver later successful snapshots.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Subscription is a live snapshot feed. Close releases the feed; the
// Snapshots channel is closed afterwards.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Close()
}

// TaskStore is the remote document store for task data. Writes are
// id-keyed: Add inserts a full document and assigns the id, Update patches
// the named fields only, Delete removes the document.
//
// EnableNetwork and DisableNetwork gate the store's network layer. While
// disabled, writes queue locally and snapshot delivery pauses; re-enabling
// flushes queued writes and resumes delivery. Both are idempotent.
type TaskStore interface {
	Watch(ctx context.Context, q Query) (Subscription, error)
	Add(ctx context.Context, doc Document) (string, error)
	Update(ctx context.Context, id string, fields Document) error
	Delete(ctx context.Context, id string) error
	EnableNetwork(ctx context.Context) error
	DisableNetwork(ctx context.Context) error
}
