// Package memory implements store.TaskStore in process memory. It stands in
// for the managed document store in tests and the dev profile, with the same
// push semantics: every change delivers a full replacement snapshot to each
// watcher of the affected owner.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/domain"
	"taskdeck/internal/store"
)

type pendingWrite func()

// Store is an in-memory TaskStore
type Store struct {
	mu       sync.Mutex
	docs     map[string]store.Document
	subs     map[*subscription]struct{}
	offline  bool
	pending  []pendingWrite
	watchErr error
}

type subscription struct {
	store  *Store
	userID string
	ch     chan store.Snapshot
	closed bool
}

// New creates an empty memory store
func New() *Store {
	return &Store{
		docs: make(map[string]store.Document),
		subs: make(map[*subscription]struct{}),
	}
}

func (s *subscription) Snapshots() <-chan store.Snapshot { return s.ch }

func (s *subscription) Close() {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.store.subs, s)
	close(s.ch)
}

// Watch attaches a snapshot feed for the given owner. When the network is
// enabled the current document list is delivered immediately.
func (s *Store) Watch(ctx context.Context, q store.Query) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchErr != nil {
		err := s.watchErr
		s.watchErr = nil
		return nil, err
	}

	sub := &subscription{
		store:  s,
		userID: q.UserID,
		ch:     make(chan store.Snapshot, 32),
	}
	s.subs[sub] = struct{}{}

	if !s.offline {
		sub.push(store.Snapshot{Docs: s.docsForLocked(q.UserID)})
	}
	return sub, nil
}

// Add inserts a full document and assigns its id. The owner field is
// required. While offline the insert queues and the id is assigned eagerly.
func (s *Store) Add(ctx context.Context, doc store.Document) (string, error) {
	userID, _ := doc[store.FieldUserID].(string)
	if userID == "" {
		return "", fmt.Errorf("%w: document has no owner", domain.ErrBadParamInput)
	}

	id := uuid.New().String()
	stored := cloneDoc(doc)
	stored[store.FieldID] = id

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyOrQueueLocked(func() {
		s.docs[id] = stored
		s.notifyLocked(userID)
	})
	return id, nil
}

// Update patches the named fields of an existing document
func (s *Store) Update(ctx context.Context, id string, fields store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok && !s.offline {
		return domain.ErrNotFound
	}

	patch := cloneDoc(fields)
	s.applyOrQueueLocked(func() {
		doc, ok := s.docs[id]
		if !ok {
			return
		}
		for k, v := range patch {
			doc[k] = v
		}
		if userID, _ := doc[store.FieldUserID].(string); userID != "" {
			s.notifyLocked(userID)
		}
	})
	return nil
}

// Delete removes a document by id
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok && !s.offline {
		return domain.ErrNotFound
	}

	s.applyOrQueueLocked(func() {
		doc, ok := s.docs[id]
		if !ok {
			return
		}
		delete(s.docs, id)
		if userID, _ := doc[store.FieldUserID].(string); userID != "" {
			s.notifyLocked(userID)
		}
	})
	return nil
}

// EnableNetwork resumes snapshot delivery and flushes queued writes.
// Idempotent: enabling an online store delivers a fresh snapshot only.
func (s *Store) EnableNetwork(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offline = false
	for _, w := range s.pending {
		w()
	}
	s.pending = nil

	for sub := range s.subs {
		sub.push(store.Snapshot{Docs: s.docsForLocked(sub.userID)})
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

// Seed inserts a document as-is, bypassing the network gate. Test helper:
// date fields may carry any of the coercible shapes.
func (s *Store) Seed(doc store.Document) string {
	id, _ := doc[store.FieldID].(string)
	if id == "" {
		id = uuid.New().String()
	}
	stored := cloneDoc(doc)
	stored[store.FieldID] = id

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = stored
	if userID, _ := stored[store.FieldUserID].(string); userID != "" {
		s.notifyLocked(userID)
	}
	return id
}

// FailWatch makes the next Watch call fail with err
func (s *Store) FailWatch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchErr = err
}

// EmitError delivers an in-band error snapshot to every watcher of userID,
// leaving the subscriptions attached
func (s *Store) EmitError(userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.userID == userID {
			sub.push(store.Snapshot{Err: err})
		}
	}
}

func (s *Store) applyOrQueueLocked(w pendingWrite) {
	if s.offline {
		s.pending = append(s.pending, w)
		return
	}
	w()
}

func (s *Store) notifyLocked(userID string) {
	if s.offline {
		return
	}
	for sub := range s.subs {
		if sub.userID == userID {
			sub.push(store.Snapshot{Docs: s.docsForLocked(userID)})
		}
	}
}

// docsForLocked returns the owner's documents ordered by created_at descending
func (s *Store) docsForLocked(userID string) []store.Document {
	var docs []store.Document
	for _, doc := range s.docs {
		if owner, _ := doc[store.FieldUserID].(string); owner == userID {
			docs = append(docs, cloneDoc(doc))
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return createdAt(docs[i]).After(createdAt(docs[j]))
	})
	return docs
}

func (s *subscription) push(snap store.Snapshot) {
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
		// Watcher is not keeping up; the next change will deliver a full
		// replacement anyway, so dropping an intermediate snapshot is safe.
	}
}

func createdAt(doc store.Document) time.Time {
	t, err := domain.CoerceTime(doc[store.FieldCreatedAt])
	if err != nil || t == nil {
		return time.Time{}
	}
	return *t
}

func cloneDoc(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
