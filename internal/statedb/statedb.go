// Package statedb persists telemetry snapshots to a local SQLite
// database so usage history survives restarts and can be queried from
// a second process while the monitor runs.
package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// StateDB wraps a SQLite database for snapshot persistence.
// Thread-safe for concurrent use from multiple goroutines within one
// process. Multiple OS processes can safely read/write via WAL mode +
// busy timeout.
type StateDB struct {
	db *sql.DB
}

// SnapshotRow is one stored scrape of the usage panel.
type SnapshotRow struct {
	ID          int64
	TakenAt     time.Time
	SessionPct  int
	WeekAllPct  int
	WeekOpusPct int
	Status      string
}

// Open creates or opens the database at dbPath with WAL mode and a
// busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at      INTEGER NOT NULL,
			session_pct   INTEGER NOT NULL,
			week_all_pct  INTEGER NOT NULL,
			week_opus_pct INTEGER NOT NULL,
			status        TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("statedb: create snapshots: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots (taken_at)
	`); err != nil {
		return fmt.Errorf("statedb: create snapshot index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// InsertSnapshot stores one scrape and bumps the change marker so a
// polling reader in another process notices.
func (s *StateDB) InsertSnapshot(row SnapshotRow) error {
	at := row.TakenAt
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.db.Exec(`
		INSERT INTO snapshots (taken_at, session_pct, week_all_pct, week_opus_pct, status)
		VALUES (?, ?, ?, ?, ?)
	`, at.Unix(), row.SessionPct, row.WeekAllPct, row.WeekOpusPct, row.Status); err != nil {
		return fmt.Errorf("statedb: insert snapshot: %w", err)
	}
	return s.Touch()
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (s *StateDB) RecentSnapshots(limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, taken_at, session_pct, week_all_pct, week_opus_pct, status
		FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var takenUnix int64
		if err := rows.Scan(&r.ID, &takenUnix, &r.SessionPct, &r.WeekAllPct, &r.WeekOpusPct, &r.Status); err != nil {
			return nil, err
		}
		r.TakenAt = time.Unix(takenUnix, 0)
		result = append(result, r)
	}
	return result, rows.Err()
}

// LatestSnapshot returns the newest snapshot, or ok=false when none
// have been stored.
func (s *StateDB) LatestSnapshot() (SnapshotRow, bool, error) {
	rows, err := s.RecentSnapshots(1)
	if err != nil || len(rows) == 0 {
		return SnapshotRow{}, false, err
	}
	return rows[0], true, nil
}

// PruneBefore deletes snapshots taken before cutoff.
func (s *StateDB) PruneBefore(cutoff time.Time) error {
	_, err := s.db.Exec("DELETE FROM snapshots WHERE taken_at < ?", cutoff.Unix())
	return err
}

// IsEmpty returns true if no snapshots are stored.
func (s *StateDB) IsEmpty() (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Touch updates a metadata timestamp that other processes can poll to
// detect changes without file watching.
func (s *StateDB) Touch() error {
	return s.SetMeta("last_modified", fmt.Sprintf("%d", time.Now().UnixNano()))
}

// LastModified returns the last_modified timestamp from metadata.
func (s *StateDB) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	var ts int64
	_, err = fmt.Sscanf(val, "%d", &ts)
	return ts, err
}
