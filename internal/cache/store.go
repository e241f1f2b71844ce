package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/helixir/citation-network-service/internal/domain"
)

// SnapshotStore persists snapshot blobs under string keys.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	Save(ctx context.Context, key string, data []byte) error
}

// SQLiteSnapshotStore keeps snapshots in a single-table SQLite database.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*SQLiteSnapshotStore)(nil)

// OpenSQLiteSnapshotStore opens or creates the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening snapshot database: %v", domain.ErrCacheStorage, err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	const schema = `
		CREATE TABLE IF NOT EXISTS cache_snapshots (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating snapshot schema: %v", domain.ErrCacheStorage, err)
	}

	return &SQLiteSnapshotStore{db: db}, nil
}

// Load implements SnapshotStore.
func (s *SQLiteSnapshotStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM cache_snapshots WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: loading snapshot %s: %v", domain.ErrCacheStorage, key, err)
	}
	return data, true, nil
}

// Save implements SnapshotStore.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_snapshots (key, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data)
	if err != nil {
		return fmt.Errorf("%w: saving snapshot %s: %v", domain.ErrCacheStorage, key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}

// MemorySnapshotStore is an in-process SnapshotStore.
type MemorySnapshotStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

// NewMemorySnapshotStore creates an empty MemorySnapshotStore.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{data: make(map[string][]byte)}
}

// Load implements SnapshotStore.
func (s *MemorySnapshotStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), d...), true, nil
}

// Save implements SnapshotStore.
func (s *MemorySnapshotStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}
