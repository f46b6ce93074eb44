// Package postgres implements store.TaskStore on PostgreSQL. Change
// notification rides LISTEN/NOTIFY: a row trigger publishes the owner id on
// every write, and each watcher re-runs its query and pushes a full
// replacement snapshot.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskdeck/internal/domain"
	"taskdeck/internal/store"
)

const (
	notifyChannel = "task_changes"
	tasksIndex    = "idx_tasks_user_created"

	// indexRepairDocs is embedded in index-missing errors so operators can
	// act on them; the repository extracts it for display.
	indexRepairDocs = "https://taskdeck.dev/docs/deploy/indexes#tasks"
)

type pendingWrite func(ctx context.Context) error

// Store is a PostgreSQL-backed TaskStore
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu      sync.Mutex
	offline bool
	pending []pendingWrite
	subs    map[*subscription]struct{}
}

// NewStore creates a TaskStore over an existing pool
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
}

type subscription struct {
	store  *Store
	userID string
	ch     chan store.Snapshot
	kick   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Snapshots() <-chan store.Snapshot { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.store.mu.Lock()
		delete(s.store.subs, s)
		s.store.mu.Unlock()
	})
}

// Watch attaches a snapshot feed for one owner. The composite index backing
// the owner-equality plus creation-order query must exist; without it the
// feed delivers an index-missing error in-band, with repair instructions,
// and stays attached so creating the index self-heals on the next
// network-enable kick.
func (s *Store) Watch(ctx context.Context, q store.Query) (store.Subscription, error) {
	watchCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		store:  s,
		userID: q.UserID,
		ch:     make(chan store.Snapshot, 32),
		kick:   make(chan struct{}, 1),
		cancel: cancel,
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go s.watchLoop(watchCtx, sub)
	return sub, nil
}

func (s *Store) ensureIndex(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = 'tasks' AND indexname = $1)`,
		tasksIndex,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if !exists {
		return domain.NewIndexError(fmt.Sprintf(
			"query on tasks(user_id, created_at DESC) requires index %s; see %s",
			tasksIndex, indexRepairDocs,
		))
	}
	return nil
}

// watchLoop pushes an initial snapshot, then re-queries on every matching
// notification. Query failures go out in-band; the loop stays attached so a
// later successful push self-heals.
func (s *Store) watchLoop(ctx context.Context, sub *subscription) {
	defer close(sub.ch)

	notifCh := make(chan struct{}, 1)
	go s.listen(ctx, sub.userID, notifCh)

	// The index check repeats on every kick (network re-enable) so an
	// operator-created index heals watchers without a re-subscribe.
	checked := s.checkedPush(ctx, sub)
	for {
		select {
		case <-ctx.Done():
			return
		case <-notifCh:
			if checked {
				s.pushSnapshot(ctx, sub)
			} else {
				checked = s.checkedPush(ctx, sub)
			}
		case <-sub.kick:
			checked = s.checkedPush(ctx, sub)
		}
	}
}

// checkedPush verifies the composite index before querying, delivering an
// in-band index-missing error when it is absent. Returns whether the check
// passed.
func (s *Store) checkedPush(ctx context.Context, sub *subscription) bool {
	s.mu.Lock()
	offline := s.offline
	s.mu.Unlock()
	if offline {
		return false
	}

	if err := s.ensureIndex(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		select {
		case sub.ch <- store.Snapshot{Err: err}:
		default:
		}
		return false
	}
	s.pushSnapshot(ctx, sub)
	return true
}

// listen holds a dedicated connection on the notify channel and forwards
// notifications for the watched owner
func (s *Store) listen(ctx context.Context, userID string, notifCh chan<- struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("Listen connection failed, retrying", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
			conn.Release()
			s.logger.Warn("LISTEN failed, retrying", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				conn.Release()
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("Notification wait failed, reconnecting", zap.Error(err))
				break
			}
			if n.Payload == "" || n.Payload == userID {
				select {
				case notifCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (s *Store) pushSnapshot(ctx context.Context, sub *subscription) {
	s.mu.Lock()
	offline := s.offline
	s.mu.Unlock()
	if offline {
		return
	}

	docs, err := s.queryDocs(ctx, sub.userID)
	snap := store.Snapshot{Docs: docs}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		snap = store.Snapshot{Err: fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)}
	}
	select {
	case sub.ch <- snap:
	default:
		// Watcher lagging; the next change pushes a full replacement anyway.
	}
}

func (s *Store) queryDocs(ctx context.Context, userID string) ([]store.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, description, category, priority, status,
		       due_date, created_at, updated_at, tags, subtasks, timeframe,
		       estimate, favorite
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDoc(rows pgx.Rows) (store.Document, error) {
	var (
		id, userID, title, description     string
		category, priority, status, timefr string
		dueDate                            *time.Time
		createdAt, updatedAt               time.Time
		tags                               []string
		subtasksJSON                       []byte
		estimate                           *float64
		favorite                           *bool
	)
	err := rows.Scan(&id, &userID, &title, &description, &category, &priority,
		&status, &dueDate, &createdAt, &updatedAt, &tags, &subtasksJSON,
		&timefr, &estimate, &favorite)
	if err != nil {
		return nil, err
	}

	doc := store.Document{
		store.FieldID:          id,
		store.FieldUserID:      userID,
		store.FieldTitle:       title,
		store.FieldDescription: description,
		store.FieldCategory:    category,
		store.FieldPriority:    priority,
		store.FieldStatus:      status,
		store.FieldCreatedAt:   createdAt,
		store.FieldUpdatedAt:   updatedAt,
		store.FieldTimeframe:   timefr,
		store.FieldTags:        tags,
	}
	if dueDate != nil {
		doc[store.FieldDueDate] = *dueDate
	}
	if len(subtasksJSON) > 0 {
		var subs []domain.Subtask
		if err := json.Unmarshal(subtasksJSON, &subs); err != nil {
			return nil, fmt.Errorf("subtasks for %s: %w", id, err)
		}
		doc[store.FieldSubtasks] = subs
	}
	if estimate != nil {
		doc[store.FieldEstimate] = *estimate
	}
	if favorite != nil {
		doc[store.FieldFavorite] = *favorite
	}
	return doc, nil
}

// Add inserts a full document and assigns its id. While the network is
// disabled the insert queues, with the id assigned eagerly.
func (s *Store) Add(ctx context.Context, doc store.Document) (string, error) {
	userID, _ := doc[store.FieldUserID].(string)
	if userID == "" {
		return "", fmt.Errorf("%w: document has no owner", domain.ErrBadParamInput)
	}

	id := uuid.New().String()
	write := func(ctx context.Context) error {
		subtasksJSON, err := marshalSubtasks(doc[store.FieldSubtasks])
		if err != nil {
			return err
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO tasks (
				id, user_id, title, description, category, priority, status,
				due_date, created_at, updated_at, tags, subtasks, timeframe,
				estimate, favorite
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			id, userID,
			doc[store.FieldTitle], doc[store.FieldDescription],
			doc[store.FieldCategory], doc[store.FieldPriority], doc[store.FieldStatus],
			doc[store.FieldDueDate], doc[store.FieldCreatedAt], doc[store.FieldUpdatedAt],
			doc[store.FieldTags], subtasksJSON, doc[store.FieldTimeframe],
			doc[store.FieldEstimate], doc[store.FieldFavorite],
		)
		return err
	}

	if err := s.applyOrQueue(ctx, write); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return id, nil
}

// Update patches only the named fields of one row
func (s *Store) Update(ctx context.Context, id string, fields store.Document) error {
	if len(fields) == 0 {
		return nil
	}

	// Deterministic column order keeps the statement stable for a given
	// field set.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	setClause := ""
	args := []any{id}
	argNum := 2
	for _, k := range keys {
		v := fields[k]
		if k == store.FieldSubtasks {
			subtasksJSON, err := marshalSubtasks(v)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrBadParamInput, err)
			}
			v = subtasksJSON
		}
		if setClause != "" {
			setClause += ", "
		}
		setClause += fmt.Sprintf("%s = $%d", k, argNum)
		args = append(args, v)
		argNum++
	}

	write := func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, "UPDATE tasks SET "+setClause+" WHERE id = $1", args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	}

	if err := s.applyOrQueue(ctx, write); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Delete removes one row by id
func (s *Store) Delete(ctx context.Context, id string) error {
	write := func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	}

	if err := s.applyOrQueue(ctx, write); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// EnableNetwork flushes queued writes and kicks every watcher to re-query.
// Idempotent when already online.
func (s *Store) EnableNetwork(ctx context.Context) error {
	s.mu.Lock()
	s.offline = false
	pending := s.pending
	s.pending = nil
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, w := range pending {
		if err := w(ctx); err != nil {
			s.logger.Warn("Queued write failed on reconnect", zap.Error(err))
		}
	}
	for _, sub := range subs {
		select {
		case sub.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// DisableNetwork pauses snapshot delivery and starts queueing writes
func (s *Store) DisableNetwork(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = true
	return nil
}

func (s *Store) applyOrQueue(ctx context.Context, w pendingWrite) error {
	s.mu.Lock()
	if s.offline {
		s.pending = append(s.pending, w)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return w(ctx)
}

func marshalSubtasks(v any) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}
