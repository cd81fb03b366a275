package store

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.uber.org/zap"

	"github.com/ajitpratap0/streamdsl/pkg/json"
	"github.com/ajitpratap0/streamdsl/pkg/metrics"
	"github.com/ajitpratap0/streamdsl/pkg/sderrors"
)

// SQLiteStore is a file-backed KeyedStore. Accumulators are JSON-encoded
// into a single key-value table; increments run inside a transaction so the
// read-modify-write is atomic per key.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed initializes) a store at the given
// path. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "failed to open sqlite store").
			WithDetail("path", path)
	}

	// Serialize access; sqlite handles one writer at a time anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "failed to initialize sqlite store")
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_store")),
	}, nil
}

// Get implements KeyedStore.
func (s *SQLiteStore) Get(ctx context.Context, key string) (interface{}, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("get")

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sqlite read failed").
			WithDetail("key", key)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, sderrors.Wrap(err, sderrors.ErrorTypeData, "corrupt accumulator value").
			WithDetail("key", key)
	}
	return value, true, nil
}

// Put implements KeyedStore.
func (s *SQLiteStore) Put(ctx context.Context, key string, value interface{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("put")

	raw, err := json.Marshal(value)
	if err != nil {
		return sderrors.Wrap(err, sderrors.ErrorTypeData, "failed to encode accumulator").
			WithDetail("key", key)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(raw))
	if err != nil {
		return sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sqlite write failed").
			WithDetail("key", key)
	}
	return nil
}

// Increment implements KeyedStore.
func (s *SQLiteStore) Increment(ctx context.Context, key string) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("increment")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sqlite transaction failed")
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	var current int64
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return 0, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sqlite read failed").
			WithDetail("key", key)
	default:
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return 0, sderrors.Wrap(err, sderrors.ErrorTypeData, "corrupt accumulator value").
				WithDetail("key", key)
		}
		current = toInt64(value)
	}

	current++
	encoded, err := json.Marshal(current)
	if err != nil {
		return 0, sderrors.Wrap(err, sderrors.ErrorTypeData, "failed to encode accumulator")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(encoded)); err != nil {
		return 0, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sqlite write failed").
			WithDetail("key", key)
	}
	if err := tx.Commit(); err != nil {
		return 0, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "sqlite commit failed")
	}
	return current, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
