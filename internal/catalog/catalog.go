// Package catalog implements the Context Catalog: a persistent SQLite index
// of context snapshots with range queries and bounded retention, opened in
// WAL mode for concurrent readers and a single writer.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
)

var log = logging.L("catalog")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id        INTEGER PRIMARY KEY,
	path      TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	phash     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);
`

// Catalog wraps a *sql.DB over a single SQLite file.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path in WAL mode
// and ensures the schema exists.
func Open(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	// WAL allows one writer and many concurrent readers; keep enough open
	// connections that readers are never starved behind the writer.
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error { return c.db.Close() }

// Insert adds one snapshot row and returns its assigned id.
func (c *Catalog) Insert(snap model.ContextSnapshot) (int64, error) {
	res, err := c.db.Exec(
		`INSERT INTO snapshots(path, timestamp, phash) VALUES (?, ?, ?)`,
		snap.Path, snap.Timestamp.UnixMilli(), int64(snap.Hash),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// Range returns rows with timestamp in [from, to], ordered ascending.
func (c *Catalog) Range(from, to time.Time) ([]model.ContextSnapshot, error) {
	rows, err := c.db.Query(
		`SELECT id, path, timestamp, phash FROM snapshots WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC`,
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// DeleteBefore removes every row with timestamp < cutoff, best-effort
// deleting the backing files. Missing files are not treated as failure.
func (c *Catalog) DeleteBefore(cutoff time.Time) error {
	rows, err := c.db.Query(`SELECT id, path, timestamp, phash FROM snapshots WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("select rows to delete: %w", err)
	}
	stale, err := scanSnapshots(rows)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	if _, err := c.db.Exec(`DELETE FROM snapshots WHERE timestamp < ?`, cutoff.UnixMilli()); err != nil {
		return fmt.Errorf("delete stale rows: %w", err)
	}
	c.deleteFiles(stale)
	return nil
}

// Count returns the total number of catalog rows.
func (c *Catalog) Count() (int, error) {
	var total int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return total, nil
}

// EnforceMax deletes the oldest rows beyond the newest n, best-effort
// deleting their files.
func (c *Catalog) EnforceMax(n int) error {
	var total int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&total); err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if total <= n {
		return nil
	}
	overflow := total - n

	rows, err := c.db.Query(`SELECT id, path, timestamp, phash FROM snapshots ORDER BY timestamp ASC LIMIT ?`, overflow)
	if err != nil {
		return fmt.Errorf("select overflow rows: %w", err)
	}
	oldest, err := scanSnapshots(rows)
	if err != nil {
		return err
	}

	for _, s := range oldest {
		if _, err := c.db.Exec(`DELETE FROM snapshots WHERE id = ?`, s.ID); err != nil {
			return fmt.Errorf("delete row %d: %w", s.ID, err)
		}
	}
	c.deleteFiles(oldest)
	return nil
}

// Reconcile deletes any row whose file no longer exists on disk, logging
// the pruned count.
func (c *Catalog) Reconcile() error {
	rows, err := c.db.Query(`SELECT id, path, timestamp, phash FROM snapshots`)
	if err != nil {
		return fmt.Errorf("select all rows: %w", err)
	}
	all, err := scanSnapshots(rows)
	if err != nil {
		return err
	}

	pruned := 0
	for _, s := range all {
		if _, err := os.Stat(s.Path); os.IsNotExist(err) {
			if _, err := c.db.Exec(`DELETE FROM snapshots WHERE id = ?`, s.ID); err != nil {
				return fmt.Errorf("delete stale row %d: %w", s.ID, err)
			}
			pruned++
		}
	}
	if pruned > 0 {
		log.Info("reconciled context catalog", "pruned", pruned)
	}
	return nil
}

func (c *Catalog) deleteFiles(snaps []model.ContextSnapshot) {
	for _, s := range snaps {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to delete catalog snapshot file", "path", s.Path, logging.KeyError, err)
		}
	}
}

func scanSnapshots(rows *sql.Rows) ([]model.ContextSnapshot, error) {
	defer rows.Close()
	var out []model.ContextSnapshot
	for rows.Next() {
		var s model.ContextSnapshot
		var tsMillis int64
		var hash int64
		if err := rows.Scan(&s.ID, &s.Path, &tsMillis, &hash); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		s.Timestamp = time.UnixMilli(tsMillis).UTC()
		s.Hash = model.CompactHash(hash)
		out = append(out, s)
	}
	return out, rows.Err()
}
