// Package store holds the caller-visible view state: the chat list and
// per-chat message sequences the sync engine maintains. The backing
// database is an in-memory SQLite instance, so view state never
// survives a restart (the media cache is the only durable artifact).
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection holding the view state.
type DB struct {
	*sql.DB
}

// OpenMemory creates a named in-memory database. The single pinned
// connection keeps the database alive for the lifetime of the process;
// it also serializes writers, which is enough for this workload.
func OpenMemory(name string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on", name)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open view db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping view db: %w", err)
	}
	return &DB{db}, nil
}
