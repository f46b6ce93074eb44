// Package localcache keeps a SQLite copy of the last-known task list plus a
// few profile preferences, so a returning client can paint instantly before
// the first network snapshot lands. It is a presentation optimization only:
// the repository never treats it as a source of truth.
package localcache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"taskdeck/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_snapshots (
    user_id    TEXT PRIMARY KEY,
    tasks_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS preferences (
    user_id TEXT NOT NULL,
    key     TEXT NOT NULL,
    value   TEXT NOT NULL,
    PRIMARY KEY (user_id, key)
);
`

// Cache is a SQLite-backed snapshot cache
type Cache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle
func (c *Cache) Close() error {
	return c.db.Close()
}

// PutTasks replaces the cached task list for a user
func (c *Cache) PutTasks(userID string, tasks []domain.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT INTO task_snapshots (user_id, tasks_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			tasks_json = excluded.tasks_json,
			updated_at = excluded.updated_at
	`, userID, string(data), time.Now().UTC())
	return err
}

// GetTasks returns the cached task list, or nil when none is stored
func (c *Cache) GetTasks(userID string) ([]domain.Task, error) {
	var data string
	err := c.db.QueryRow(
		`SELECT tasks_json FROM task_snapshots WHERE user_id = ?`, userID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tasks []domain.Task
	if err := json.Unmarshal([]byte(data), &tasks); err != nil {
		return nil, fmt.Errorf("unmarshal cached tasks: %w", err)
	}
	return tasks, nil
}

// SetPreference stores one profile preference, e.g. the theme
func (c *Cache) SetPreference(userID, key, value string) error {
	_, err := c.db.Exec(`
		INSERT INTO preferences (user_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	return err
}

// GetPreference returns a stored preference, or "" when unset
func (c *Cache) GetPreference(userID, key string) (string, error) {
	var value string
	err := c.db.QueryRow(
		`SELECT value FROM preferences WHERE user_id = ? AND key = ?`, userID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
