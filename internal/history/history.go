// Package history records which devices have been seen on which servers.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adbview/adbview/adblib"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite history database.
type DB struct {
	db   *sql.DB
	path string
}

// Sighting is the last known state of a device on a server.
type Sighting struct {
	Addr      string
	Serial    string
	Status    adblib.Status
	FirstSeen time.Time
	LastSeen  time.Time
	Count     int64
}

// Open opens (or creates) the history database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	h := &DB{db: sqlDB, path: path}
	if err := h.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return h, nil
}

// Close closes the database.
func (h *DB) Close() error {
	return h.db.Close()
}

// Path returns the path to the database file.
func (h *DB) Path() string {
	return h.path
}

func (h *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sightings (
		addr TEXT NOT NULL,
		serial TEXT NOT NULL,
		status TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		seen_count INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (addr, serial)
	);

	CREATE INDEX IF NOT EXISTS idx_sightings_last_seen ON sightings(last_seen);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Record records that devs were attached to the server at addr.
func (h *DB) Record(ctx context.Context, addr string, at time.Time, devs ...adblib.Device) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record sightings: %w", err)
	}
	defer tx.Rollback()

	for _, d := range devs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sightings (addr, serial, status, first_seen, last_seen)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(addr, serial) DO UPDATE SET
			   status = excluded.status,
			   last_seen = excluded.last_seen,
			   seen_count = seen_count + 1`,
			addr, d.Serial, string(d.Status), at.Unix(), at.Unix(),
		); err != nil {
			return fmt.Errorf("record sighting of %s: %w", d.Serial, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record sightings: %w", err)
	}
	return nil
}

// List returns all sightings, most recent first. If addr is not empty, only
// sightings on that server are returned.
func (h *DB) List(ctx context.Context, addr string) ([]Sighting, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT addr, serial, status, first_seen, last_seen, seen_count FROM sightings
		 WHERE ? = '' OR addr = ?
		 ORDER BY last_seen DESC, addr, serial`,
		addr, addr,
	)
	if err != nil {
		return nil, fmt.Errorf("list sightings: %w", err)
	}
	defer rows.Close()

	var ss []Sighting
	for rows.Next() {
		var (
			s           Sighting
			status      string
			first, last int64
		)
		if err := rows.Scan(&s.Addr, &s.Serial, &status, &first, &last, &s.Count); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		s.Status = adblib.Status(status)
		s.FirstSeen = time.Unix(first, 0)
		s.LastSeen = time.Unix(last, 0)
		ss = append(ss, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sightings: %w", err)
	}
	return ss, nil
}

// Forget removes the sightings of a device on all servers.
func (h *DB) Forget(ctx context.Context, serial string) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM sightings WHERE serial = ?`, serial)
	if err != nil {
		return 0, fmt.Errorf("forget %s: %w", serial, err)
	}
	return res.RowsAffected()
}
