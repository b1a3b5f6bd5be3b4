package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Keys persisted by the aggregator
const (
	KeyFeedURLs = "feedUrls"
	KeyTheme    = "theme"
)

// KeyValueStore is the persistence boundary: plain string values by key
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// DB stores settings in a single SQLite table
type DB struct {
	db *sql.DB
}

// Open connects to an already migrated SQLite database
func Open(ctx context.Context, database string) (*DB, error) {
	conn, err := connection(ctx, database)
	if err != nil {
		return nil, err
	}
	return &DB{db: conn}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Get(ctx context.Context, key string) (string, bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("value").From("settings").Where(sb.Equal("name", key))
	query, args := sb.Build()

	var value string
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query error: %w", err)
	}
	return value, true, nil
}

func (db *DB) Set(ctx context.Context, key, value string) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto("settings").Cols("name", "value", "updated_at").Values(key, value, time.Now().Unix())
	query, args := ib.Build()

	log.WithFields(log.Fields{
		"key": key,
	}).Debug("Writing setting")

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, key string) error {
	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("settings").Where(del.Equal("name", key))
	query, args := del.Build()

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// MemoryStore keeps settings for the lifetime of the process only
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

var _ KeyValueStore = (*DB)(nil)
var _ KeyValueStore = (*MemoryStore)(nil)
