// Package session maps authenticated users to their bound task
// repositories. One repository per active user keeps the single-writer
// discipline the snapshot-replace model relies on.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"taskdeck/internal/connectivity"
	"taskdeck/internal/domain"
	"taskdeck/internal/repository"
	"taskdeck/internal/store"
)

// Manager creates and binds repositories lazily on first use
type Manager struct {
	store   store.TaskStore
	monitor connectivity.Monitor
	cache   repository.SnapshotCache
	logger  *zap.Logger

	mu    sync.Mutex
	repos map[string]*repository.Repository
}

// NewManager creates a session manager. cache may be nil.
func NewManager(st store.TaskStore, monitor connectivity.Monitor, cache repository.SnapshotCache, logger *zap.Logger) *Manager {
	return &Manager{
		store:   st,
		monitor: monitor,
		cache:   cache,
		logger:  logger,
		repos:   make(map[string]*repository.Repository),
	}
}

// Repository returns the bound repository for a user, creating and binding
// it on first use. A failed initial attach is recorded on the repository
// (and retried on the next connectivity flip), not returned: cached data
// stays served in the meantime.
func (m *Manager) Repository(ctx context.Context, userID string) (*repository.Repository, error) {
	if userID == "" {
		return nil, domain.ErrAuthRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if repo, ok := m.repos[userID]; ok {
		return repo, nil
	}

	repo := repository.New(m.store, m.monitor, m.cache, m.logger.Named("repository"))
	if err := repo.Bind(ctx, userID); err != nil {
		m.logger.Warn("Initial subscription attach failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	m.repos[userID] = repo
	return repo, nil
}

// Sessions returns the currently bound repositories keyed by user
func (m *Manager) Sessions() map[string]*repository.Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*repository.Repository, len(m.repos))
	for userID, repo := range m.repos {
		out[userID] = repo
	}
	return out
}

// Shutdown unbinds every session
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, repo := range m.repos {
		repo.Unbind()
		delete(m.repos, userID)
	}
}
