package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

type DB struct {
	*sql.DB
	// Retention is how many newest journal rows InsertEntry keeps.
	// Zero or less keeps everything.
	Retention int
}

// Open opens the journal at path. An empty path gives a private in-memory
// database that disappears with the process.
func Open(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	if path == "" {
		dsn = ":memory:"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == "" {
		// Every new connection to :memory: would see an empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if path == "" {
		slog.Info("database opened", "path", ":memory:")
	} else {
		slog.Info("database opened", "path", path)
	}
	return &DB{DB: sqlDB, Retention: DefaultRetention}, nil
}
