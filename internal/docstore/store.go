package docstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/loginsight/loginsight/internal/docstore/migrate"
)

// Store manages the DuckDB document database and provides query methods.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		// Ensure parent directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

var (
	sharedMu sync.Mutex
	shared   *Store
)

// Shared returns the process-wide store, opening it on first use.
// Construction is serialized so concurrent callers share one connection pool.
func Shared(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		return shared, nil
	}
	s, err := NewStore(dbPath, queryTimeout...)
	if err != nil {
		return nil, err
	}
	shared = s
	return shared, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct query access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// queryCtx derives a context with the store's configured query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}
