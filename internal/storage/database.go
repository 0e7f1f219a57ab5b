package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/eternisai/chat-relay/internal/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	DB      *sql.DB
	Backend config.SessionBackend
}

// Options configures the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// InitDatabase opens the session database for backend and runs migrations.
func InitDatabase(backend config.SessionBackend, databaseURL string, opts Options) (*Database, error) {
	driver, err := driverFor(backend)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if backend == config.SessionBackendSQLite {
		// One connection keeps ":memory:" databases shared and avoids writer contention.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db, backend); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Database{DB: db, Backend: backend}, nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}

func driverFor(backend config.SessionBackend) (string, error) {
	switch backend {
	case config.SessionBackendPostgres:
		return "postgres", nil
	case config.SessionBackendSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("no database driver for session backend %q", backend)
	}
}
