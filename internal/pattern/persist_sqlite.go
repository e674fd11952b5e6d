package pattern

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pattern_versions (
	version_id  TEXT PRIMARY KEY,
	parent_id   TEXT,
	snapshot    TEXT NOT NULL,
	updates     INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES pattern_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_pattern (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	version_id  TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES pattern_versions(version_id)
);
`

// #endregion schema

// #region persister-struct

// SQLitePersister stores every saved snapshot as a version row and keeps an
// active pointer, so earlier versions can be listed and rolled back to.
type SQLitePersister struct {
	db *sql.DB
}

// #endregion persister-struct

// #region constructor

// NewSQLitePersister opens a SQLite database and runs migrations.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

// Close closes the underlying database connection.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// DB returns the underlying *sql.DB so the ledger and exemplar store can share it.
func (p *SQLitePersister) DB() *sql.DB {
	return p.db
}

// #endregion constructor

// #region save

// SaveSnapshot inserts a new version whose parent is the current active
// version, and moves the active pointer to it atomically.
func (p *SQLitePersister) SaveSnapshot(snap Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	id := uuid.New().String()
	created := snap.SavedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := p.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent any
	var activeID string
	err = tx.QueryRow(`SELECT version_id FROM active_pattern WHERE id = 1`).Scan(&activeID)
	switch {
	case err == nil:
		parent = activeID
	case errors.Is(err, sql.ErrNoRows):
	default:
		return "", fmt.Errorf("get active: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO pattern_versions (version_id, parent_id, snapshot, updates, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, parent, string(data), snap.Counters.Updates, created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_pattern (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return "", fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// #endregion save

// #region load

// LoadSnapshot reads the active version.
func (p *SQLitePersister) LoadSnapshot() (Snapshot, error) {
	var versionID string
	err := p.db.QueryRow(`SELECT version_id FROM active_pattern WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get active: %w", err)
	}
	return p.GetVersion(versionID)
}

// GetVersion retrieves a specific snapshot version by ID.
func (p *SQLitePersister) GetVersion(id string) (Snapshot, error) {
	var data string
	err := p.db.QueryRow(`SELECT snapshot FROM pattern_versions WHERE version_id = ?`, id).Scan(&data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return decodeSnapshot([]byte(data))
}

// #endregion load

var _ Versioned = (*SQLitePersister)(nil)

// #region list-versions

// ListVersions returns the most recent snapshot versions, newest first.
func (p *SQLitePersister) ListVersions(limit int) ([]VersionInfo, error) {
	var active string
	if err := p.db.QueryRow(`SELECT version_id FROM active_pattern WHERE id = 1`).Scan(&active); err != nil &&
		!errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get active: %w", err)
	}

	rows, err := p.db.Query(
		`SELECT version_id, parent_id, updates, created_at
		 FROM pattern_versions ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var v VersionInfo
		var parentID sql.NullString
		var createdStr string
		if err := rows.Scan(&v.VersionID, &parentID, &v.Updates, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if parentID.Valid {
			v.ParentID = parentID.String
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		v.Active = v.VersionID == active
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion list-versions
