// Package dbindex owns the local index database backing doctor's
// trivial-query health check. The notebook's tasks live as markdown files;
// this database is just an optional secondary index (e.g. for fast ID
// lookups), so its schema is intentionally small.
package dbindex

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // postgres driver
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Config selects the backend, mirroring the teacher's db.StoreConfig.
type Config struct {
	Type             string // "sqlite" (default) or "postgres"
	ConnectionString string
}

// Index wraps the underlying *sql.DB with the small set of operations the
// runner's doctor and dashboard need.
type Index struct {
	db *sql.DB
}

// Open connects and applies migrations, matching the teacher's
// WAL-mode-plus-busy-timeout sqlite DSN and straightforward postgres DSN.
func Open(cfg Config) (*Index, error) {
	driver, dsn := driverAndDSN(cfg)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return idx, nil
}

func driverAndDSN(cfg Config) (driver, dsn string) {
	switch strings.ToLower(cfg.Type) {
	case "postgres", "postgresql":
		return "postgres", cfg.ConnectionString
	default:
		path := cfg.ConnectionString
		if path == "" {
			path = ".brain.db"
		}
		return "sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
}

func (idx *Index) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS task_index (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_index_project ON task_index (project, status);`,
		`CREATE TABLE IF NOT EXISTS runner_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT NOT NULL,
			task_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err := idx.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// UpsertTask records or updates a task's last-known status, for fast
// cross-project lookups without re-reading every project's markdown.
func (idx *Index) UpsertTask(id, project, path, status string) error {
	_, err := idx.db.Exec(
		`INSERT INTO task_index (id, project, path, status, updated_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET project=excluded.project, path=excluded.path, status=excluded.status, updated_at=CURRENT_TIMESTAMP`,
		id, project, path, status,
	)
	return err
}

// RecordEvent appends a runner event (dispatch, cancel, outcome) for later
// audit/debugging.
func (idx *Index) RecordEvent(project, taskID, kind, detail string) error {
	_, err := idx.db.Exec(
		`INSERT INTO runner_events (project, task_id, kind, detail) VALUES (?, ?, ?, ?)`,
		project, taskID, kind, detail,
	)
	return err
}

// Ping is the doctor's trivial-query check: open a new connection, verify
// it responds, and close it. It is a package-level function variable so
// internal/doctor can substitute it in tests without a real database file.
var Ping = func(connectionString string) error {
	idx, err := Open(Config{ConnectionString: connectionString})
	if err != nil {
		return err
	}
	defer idx.Close()
	return idx.db.Ping()
}
