package token

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS local_storage (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteMedium stores values in a single-table SQLite file, standing in for
// the browser's local storage.
type SQLiteMedium struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string) (*SQLiteMedium, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return &SQLiteMedium{db: db}, nil
}

func (m *SQLiteMedium) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := m.db.QueryRowContext(ctx, "SELECT value FROM local_storage WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "select value")
	}
	return value, nil
}

func (m *SQLiteMedium) Set(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO local_storage(key, value, updated_at) VALUES(?,?,?)",
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "upsert value")
}

func (m *SQLiteMedium) Delete(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM local_storage WHERE key = ?", key)
	return errors.Wrap(err, "delete value")
}

func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}
