// Package sqlite stores activities in an embedded SQLite database.
//
// Every activity is one row of the activities table. The row holds the GPX
// document plus the attributes as native columns, so that changing a title
// or a keyword is a single UPDATE instead of a rewrite of the document.
// The columns win over the document when loading.
//
// The database runs in WAL mode with a busy timeout, so the CLI can read
// while the watch daemon writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/keywords"
)

// Kind is the registered store kind.
const Kind = "sqlite"

func init() {
	backend.Register(Kind, func(loc backend.Location) (backend.Store, error) {
		return Open(loc.Path)
	})
}

// Store is a SQLite database of activities.
type Store struct {
	conn    *sql.DB
	path    string
	created bool
}

// Open opens or creates the database at path and initializes the schema.
// An empty path creates a database in a new temporary directory, removed
// again by Destroy.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	created := false
	if path == "" {
		dir, err := os.MkdirTemp("", "gpxity-sqlite.")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary directory: %w", err)
		}
		path = filepath.Join(dir, "activities.db")
		created = true
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path, created: created}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the activities table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		what TEXT NOT NULL,
		public INTEGER NOT NULL DEFAULT 0,
		keywords TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		last_time TEXT NOT NULL,
		point_count INTEGER NOT NULL,
		gpx TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_start ON activities(start_time);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// RawDB returns the underlying connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Kind implements backend.Store.
func (s *Store) Kind() string {
	return Kind
}

// Location implements backend.Store.
func (s *Store) Location() string {
	return s.path
}

// Capabilities implements backend.Store. Rows need a start time, so
// activities without points cannot be stored.
func (s *Store) Capabilities() activity.Capabilities {
	return activity.FullCapabilities().Without(activity.CapSaveEmpty)
}

// List implements backend.Store.
func (s *Store) List() ([]string, error) {
	return s.ListContext(context.Background())
}

// ListContext returns all ids ordered by start time.
func (s *Store) ListContext(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM activities ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NewID implements backend.Store. Ids are numeric; hint is ignored.
func (s *Store) NewID(a *activity.Activity, hint string) (string, error) {
	var max int64
	err := s.conn.QueryRow(
		`SELECT COALESCE(MAX(CAST(id AS INTEGER)), 0) FROM activities WHERE id GLOB '[0-9]*'`,
	).Scan(&max)
	if err != nil {
		return "", fmt.Errorf("failed to allocate id: %w", err)
	}
	return strconv.FormatInt(max+1, 10), nil
}

// Load implements backend.Store.
func (s *Store) Load(a *activity.Activity) error {
	return s.LoadContext(context.Background(), a)
}

// LoadContext fills a from its row.
func (s *Store) LoadContext(ctx context.Context, a *activity.Activity) error {
	var (
		title, description, what, kws, gpx string
		public                             bool
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT title, description, what, public, keywords, gpx FROM activities WHERE id = ?`, a.ID(),
	).Scan(&title, &description, &what, &public, &kws, &gpx)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, a.ID())
	}
	if err != nil {
		return fmt.Errorf("failed to read activity %s: %w", a.ID(), err)
	}

	return a.LoadWith(func() error {
		if err := a.Parse([]byte(gpx)); err != nil {
			return err
		}
		if err := a.SetTitle(title); err != nil {
			return err
		}
		if err := a.SetDescription(description); err != nil {
			return err
		}
		if err := a.SetWhat(what); err != nil {
			return err
		}
		if err := a.SetPublic(public); err != nil {
			return err
		}
		return a.SetKeywords(keywords.Split(kws))
	})
}

// Write implements backend.Store.
func (s *Store) Write(a *activity.Activity) error {
	return s.WriteContext(context.Background(), a)
}

// WriteContext inserts or replaces the row of a.
func (s *Store) WriteContext(ctx context.Context, a *activity.Activity) error {
	gpx, err := a.ToXML()
	if err != nil {
		return err
	}
	start, last := a.Time(), a.LastTime()
	if start.IsZero() {
		return fmt.Errorf("%w: activity %s has no time", activity.ErrNotSupported, a.ID())
	}

	query := `
	INSERT INTO activities (
		id, title, description, what, public, keywords,
		start_time, last_time, point_count, gpx, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		what = excluded.what,
		public = excluded.public,
		keywords = excluded.keywords,
		start_time = excluded.start_time,
		last_time = excluded.last_time,
		point_count = excluded.point_count,
		gpx = excluded.gpx,
		updated_at = excluded.updated_at
	`
	_, err = s.conn.ExecContext(ctx, query,
		a.ID(),
		a.Title(),
		a.Description(),
		a.What(),
		a.Public(),
		keywords.Join(a.Keywords()),
		formatTime(start),
		formatTime(last),
		a.PointCount(),
		gpx,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to write activity %s: %w", a.ID(), err)
	}
	return nil
}

// WriteAttribute implements backend.AttributeWriter with a single UPDATE.
func (s *Store) WriteAttribute(a *activity.Activity, attr backend.Attribute, value string) error {
	var (
		column string
		arg    any
	)
	switch attr {
	case backend.AttrTitle:
		column, arg = "title", a.Title()
	case backend.AttrDescription:
		column, arg = "description", a.Description()
	case backend.AttrWhat:
		column, arg = "what", a.What()
	case backend.AttrPublic:
		column, arg = "public", a.Public()
	case backend.AttrAddKeyword, backend.AttrRemoveKeyword:
		column, arg = "keywords", keywords.Join(a.Keywords())
	default:
		return s.Write(a)
	}

	res, err := s.conn.Exec(
		fmt.Sprintf(`UPDATE activities SET %s = ?, updated_at = ? WHERE id = ?`, column),
		arg, formatTime(time.Now()), a.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update %s of %s: %w", column, a.ID(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, a.ID())
	}
	return nil
}

// Remove implements backend.Store.
func (s *Store) Remove(id string) error {
	res, err := s.conn.Exec(`DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove activity %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, id)
	}
	return nil
}

// Time implements backend.Store and returns the database clock.
func (s *Store) Time() (time.Time, error) {
	var now string
	if err := s.conn.QueryRow(`SELECT strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to query time: %w", err)
	}
	return time.Parse(time.RFC3339, now)
}

// Destroy removes the database if Open created it.
func (s *Store) Destroy() error {
	if !s.created {
		return nil
	}
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return nil
}

// Close implements backend.Store. It checkpoints the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var (
	_ backend.Store           = (*Store)(nil)
	_ backend.AttributeWriter = (*Store)(nil)
)
