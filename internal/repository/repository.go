// Package repository owns the live, per-user view of tasks: the watch
// subscription, the in-memory task list, the derived statistics, and the
// mutation operations. It is the only component that talks to the document
// store for task data; consumers treat Tasks and Stats as read-only and
// route every write through the mutation operations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskdeck/internal/connectivity"
	"taskdeck/internal/domain"
	"taskdeck/internal/store"
)

// State is the subscription lifecycle phase
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateSubscribing     State = "subscribing"
	StateLive            State = "live"
	StateUnsubscribed    State = "unsubscribed"
)

// SnapshotCache persists the last-known task list for instant paint before
// network data arrives. A presentation optimization: failures are logged and
// never affect the repository's correctness.
type SnapshotCache interface {
	PutTasks(userID string, tasks []domain.Task) error
	GetTasks(userID string) ([]domain.Task, error)
}

// Repository maintains one user session's task view
type Repository struct {
	store   store.TaskStore
	monitor connectivity.Monitor
	cache   SnapshotCache
	logger  *zap.Logger

	mu      sync.RWMutex
	state   State
	userID  string
	tasks   []domain.Task
	stats   domain.Statistics
	loading bool
	lastErr error

	sub      store.Subscription
	cancel   context.CancelFunc
	connCh   <-chan bool
	watchers map[<-chan struct{}]chan struct{}
}

// New creates an unbound repository. cache may be nil.
func New(st store.TaskStore, monitor connectivity.Monitor, cache SnapshotCache, logger *zap.Logger) *Repository {
	return &Repository{
		store:    st,
		monitor:  monitor,
		cache:    cache,
		logger:   logger,
		state:    StateUnauthenticated,
		watchers: make(map[<-chan struct{}]chan struct{}),
	}
}

// Bind attaches the repository to a user and starts the subscription.
// A repository already bound to another user is torn down first. The network
// policy (enable when online, disable when offline) settles before the
// listener attaches; attaching first races the toggle and reports spurious
// errors. A failed attach is returned and recorded; there is no automatic
// retry — the caller re-binds, or a connectivity flip to online re-attaches.
func (r *Repository) Bind(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: bind requires a user id", domain.ErrAuthRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.teardownLocked()
	r.userID = userID
	r.state = StateSubscribing
	r.loading = true
	r.lastErr = nil
	r.tasks = nil
	r.stats = domain.ComputeStatistics(nil, time.Now())

	if r.cache != nil {
		if cached, err := r.cache.GetTasks(userID); err != nil {
			r.logger.Warn("Snapshot cache read failed", zap.Error(err))
		} else if len(cached) > 0 {
			r.tasks = cached
			r.stats = domain.ComputeStatistics(cached, time.Now())
		}
	}

	bindCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.connCh = r.monitor.Subscribe()
	go r.watchConnectivity(bindCtx, r.connCh)

	if err := r.applyNetworkPolicyLocked(ctx); err != nil {
		r.lastErr = err
	}

	if err := r.attachLocked(ctx); err != nil {
		r.lastErr = err
		r.loading = false
		return err
	}
	return nil
}

// Unbind releases the subscription synchronously and returns the repository
// to the unsubscribed state. The retained task list is dropped; a later Bind
// restarts the machine from subscribing.
func (r *Repository) Unbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownLocked()
	r.state = StateUnsubscribed
	r.userID = ""
	r.loading = false
	r.tasks = nil
	r.stats = domain.Statistics{}
}

func (r *Repository) teardownLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.connCh != nil {
		r.monitor.Unsubscribe(r.connCh)
		r.connCh = nil
	}
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
}

func (r *Repository) applyNetworkPolicyLocked(ctx context.Context) error {
	if r.monitor.Online() {
		return classify(r.store.EnableNetwork(ctx))
	}
	return classify(r.store.DisableNetwork(ctx))
}

func (r *Repository) attachLocked(ctx context.Context) error {
	sub, err := r.store.Watch(ctx, store.Query{UserID: r.userID})
	if err != nil {
		return classify(err)
	}
	r.sub = sub
	r.state = StateLive
	go r.consume(sub)
	return nil
}

// consume drains one subscription until its channel closes
func (r *Repository) consume(sub store.Subscription) {
	for snap := range sub.Snapshots() {
		r.applySnapshot(sub, snap)
	}
}

// applySnapshot replaces the task list wholesale and recomputes statistics.
// An errored snapshot only records the error: the stale list stays on
// display and the subscription remains attached, so a later successful push
// self-heals the view.
func (r *Repository) applySnapshot(sub store.Subscription, snap store.Snapshot) {
	r.mu.Lock()
	if r.sub != sub {
		// A stale subscription drained after rebind; ignore.
		r.mu.Unlock()
		return
	}

	if snap.Err != nil {
		r.lastErr = classify(snap.Err)
		r.logger.Warn("Snapshot error",
			zap.String("user_id", r.userID),
			zap.Error(r.lastErr),
		)
		r.mu.Unlock()
		r.notify()
		return
	}

	tasks := make([]domain.Task, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		t, err := taskFromDocument(doc)
		if err != nil {
			r.logger.Warn("Skipping malformed document", zap.Error(err))
			continue
		}
		tasks = append(tasks, t)
	}

	r.tasks = tasks
	r.stats = domain.ComputeStatistics(tasks, time.Now())
	r.lastErr = nil
	r.loading = false
	userID := r.userID
	r.mu.Unlock()

	if r.cache != nil {
		if err := r.cache.PutTasks(userID, tasks); err != nil {
			r.logger.Warn("Snapshot cache write failed", zap.Error(err))
		}
	}
	r.notify()
}

// watchConnectivity re-runs the network policy on every flip. Re-enabling is
// idempotent and does not recreate a live listener, but it does retry a
// watch attach that failed while subscribing.
func (r *Repository) watchConnectivity(ctx context.Context, ch <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			r.mu.Lock()
			if online {
				if err := classify(r.store.EnableNetwork(ctx)); err != nil {
					r.lastErr = err
				} else if r.sub == nil && r.state == StateSubscribing {
					if err := r.attachLocked(ctx); err != nil {
						r.lastErr = err
					}
				}
			} else {
				if err := classify(r.store.DisableNetwork(ctx)); err != nil {
					r.lastErr = err
				}
			}
			r.mu.Unlock()
			r.notify()
		}
	}
}

// AddTask validates and writes a new task. The repository injects the bound
// user id and stamps both created and updated times; an absent estimate is
// written as an explicit NULL so the store's "no value" is distinguishable
// from the field never having been sent. The call returns only after the
// store acknowledges the write; the local list is not touched — the next
// pushed snapshot is the sole update path.
func (r *Repository) AddTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	r.mu.RLock()
	userID := r.userID
	bound := r.state == StateSubscribing || r.state == StateLive
	r.mu.RUnlock()

	if !bound || userID == "" {
		return domain.Task{}, fmt.Errorf("%w: adding a task requires a signed-in user", domain.ErrAuthRequired)
	}
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}

	now := time.Now().UTC()
	t.UserID = userID
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Subtasks = normalizeSubtasks(t.Subtasks, now)

	doc := documentFromTask(&t)
	id, err := r.store.Add(ctx, doc)
	if err != nil {
		return domain.Task{}, classify(err)
	}
	t.ID = id
	return t, nil
}

// UpdateTask writes the fields present in the patch. Absent fields are
// dropped from the outgoing write, never sent as an unset marker; UpdatedAt
// is always stamped with the current time, overriding any caller value.
func (r *Repository) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	r.mu.RLock()
	bound := r.state == StateSubscribing || r.state == StateLive
	r.mu.RUnlock()

	if !bound {
		return fmt.Errorf("%w: updating a task requires a signed-in user", domain.ErrAuthRequired)
	}
	if id == "" {
		return fmt.Errorf("%w: task id must not be empty", domain.ErrBadParamInput)
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	fields := documentFromPatch(&patch)
	fields[store.FieldUpdatedAt] = time.Now().UTC()

	return classify(r.store.Update(ctx, id, fields))
}

// DeleteTask removes a task by id unconditionally
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	r.mu.RLock()
	bound := r.state == StateSubscribing || r.state == StateLive
	r.mu.RUnlock()

	if !bound {
		return fmt.Errorf("%w: deleting a task requires a signed-in user", domain.ErrAuthRequired)
	}
	if id == "" {
		return fmt.Errorf("%w: task id must not be empty", domain.ErrBadParamInput)
	}
	return classify(r.store.Delete(ctx, id))
}

// Tasks returns a copy of the current task list
func (r *Repository) Tasks() []domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Stats returns the statistics derived from the current list
func (r *Repository) Stats() domain.Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Loading reports whether the first snapshot is still pending
func (r *Repository) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// LastError returns the most recent subscription-path error, or nil after a
// successful snapshot cleared it. Errors are overwritten, not accumulated.
func (r *Repository) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// State returns the subscription lifecycle phase
func (r *Repository) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// UserID returns the bound user, or "" when unbound
func (r *Repository) UserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userID
}

// Subscribe returns a channel that signals after every state change:
// snapshot applied, error recorded, connectivity policy re-run
func (r *Repository) Subscribe() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{}, 1)
	r.watchers[ch] = ch
	return ch
}

// Unsubscribe releases a channel obtained from Subscribe
func (r *Repository) Unsubscribe(ch <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if full, ok := r.watchers[ch]; ok {
		delete(r.watchers, ch)
		close(full)
	}
}

func (r *Repository) notify() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// classify maps store failures onto the domain error taxonomy. Known domain
// errors pass through; anything mentioning an index becomes an IndexError
// with its repair link extracted; the rest is treated as transient.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrIndexMissing),
		errors.Is(err, domain.ErrAuthRequired),
		errors.Is(err, domain.ErrBadParamInput):
		return err
	case strings.Contains(strings.ToLower(err.Error()), "index"):
		return domain.NewIndexError(err.Error())
	default:
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
}
