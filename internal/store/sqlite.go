package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SQLite keeps links and snapshots in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLite{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS handles (
			member TEXT PRIMARY KEY,
			handle TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY,
			fetched_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_ratings (
			snapshot_id INTEGER NOT NULL,
			rating INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_ratings_snapshot ON snapshot_ratings(snapshot_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SetHandle links member to handle, replacing any previous link.
func (s *SQLite) SetHandle(ctx context.Context, member, handle string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handles (member, handle, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(member) DO UPDATE SET handle = excluded.handle, updated_at = excluded.updated_at`,
		member, handle, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Handle returns the handle linked to member.
func (s *SQLite) Handle(ctx context.Context, member string) (string, error) {
	var handle string
	err := s.db.QueryRowContext(ctx, `SELECT handle FROM handles WHERE member = ?`, member).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return handle, nil
}

// SaveRatings stores snap as the latest snapshot and drops older ones.
func (s *SQLite) SaveRatings(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	for _, stmt := range []string{`DELETE FROM snapshot_ratings`, `DELETE FROM snapshots`} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO snapshots (fetched_at) VALUES (?)`,
		snap.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if len(snap.Ratings) > 0 {
		stmt, perr := tx.PrepareContext(ctx, `INSERT INTO snapshot_ratings (snapshot_id, rating) VALUES (?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, r := range snap.Ratings {
			if _, err = stmt.ExecContext(ctx, id, r); err != nil {
				return err
			}
		}
	}
	err = tx.Commit()
	return err
}

// SnapshotTime returns when the latest snapshot was fetched.
func (s *SQLite) SnapshotTime(ctx context.Context) (time.Time, error) {
	_, at, err := s.latestSnapshot(ctx)
	return at, err
}

func (s *SQLite) latestSnapshot(ctx context.Context) (int64, time.Time, error) {
	var id int64
	var fetchedAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, fetched_at FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&id, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("invalid snapshot time %q: %w", fetchedAt, err)
	}
	return id, at, nil
}

// Ratings returns the latest snapshot.
func (s *SQLite) Ratings(ctx context.Context) (Snapshot, error) {
	id, parsed, err := s.latestSnapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rating FROM snapshot_ratings WHERE snapshot_id = ? ORDER BY rating`, id)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	snap := Snapshot{FetchedAt: parsed}
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return Snapshot{}, err
		}
		snap.Ratings = append(snap.Ratings, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
