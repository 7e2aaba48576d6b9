// Package postgres stores activities in a PostgreSQL database. It plays the
// part of a remote activity service: ids are assigned by the store, every
// attribute has its own column, and the server has its own clock.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/backend"
)

// Kind is the registered store kind.
const Kind = "postgres"

func init() {
	backend.Register(Kind, func(loc backend.Location) (backend.Store, error) {
		return Open(context.Background(), loc)
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	what TEXT NOT NULL,
	public BOOLEAN NOT NULL DEFAULT FALSE,
	keywords TEXT[] NOT NULL DEFAULT '{}',
	start_time TIMESTAMPTZ NOT NULL,
	last_time TIMESTAMPTZ NOT NULL,
	point_count INTEGER NOT NULL,
	gpx TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activities_start ON activities(start_time);
`

// Store is a pool of connections to one database.
type Store struct {
	pool     *pgxpool.Pool
	location string
}

// Open connects to the database named by loc.Path, a libpq style DSN or
// URL. loc.Username and loc.Password override the credentials of the DSN.
func Open(ctx context.Context, loc backend.Location) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if loc.Username != "" {
		cfg.ConnConfig.User = loc.Username
	}
	if loc.Password != "" {
		cfg.ConnConfig.Password = loc.Password
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return New(ctx, pool, fmt.Sprintf("%s@%s:%d/%s", cfg.ConnConfig.User, cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database))
}

// New wraps an existing pool and creates the schema.
func New(ctx context.Context, pool *pgxpool.Pool, location string) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{pool: pool, location: location}, nil
}

// Kind implements backend.Store.
func (s *Store) Kind() string {
	return Kind
}

// Location implements backend.Store. It never contains the password.
func (s *Store) Location() string {
	return s.location
}

// Capabilities implements backend.Store.
func (s *Store) Capabilities() activity.Capabilities {
	return activity.FullCapabilities().Without(activity.CapSaveEmpty)
}

// List implements backend.Store.
func (s *Store) List() ([]string, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `SELECT id FROM activities ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return ids, nil
}

// NewID implements backend.Store. Ids are uuids. A hint is used if it is
// an unused uuid.
func (s *Store) NewID(a *activity.Activity, hint string) (string, error) {
	if _, err := uuid.Parse(hint); err == nil {
		var taken bool
		err := s.pool.QueryRow(context.Background(),
			`SELECT EXISTS (SELECT 1 FROM activities WHERE id = $1)`, hint).Scan(&taken)
		if err != nil {
			return "", fmt.Errorf("failed to check id %s: %w", hint, err)
		}
		if !taken {
			return hint, nil
		}
	}
	return uuid.NewString(), nil
}

// Load implements backend.Store.
func (s *Store) Load(a *activity.Activity) error {
	var (
		title, description, what, gpx string
		public                        bool
		kws                           []string
	)
	err := s.pool.QueryRow(context.Background(),
		`SELECT title, description, what, public, keywords, gpx FROM activities WHERE id = $1`, a.ID(),
	).Scan(&title, &description, &what, &public, &kws, &gpx)
	if errors.Is(err, pgx.ErrNoRows) {
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
		return a.SetKeywords(kws)
	})
}

// Write implements backend.Store.
func (s *Store) Write(a *activity.Activity) error {
	gpx, err := a.ToXML()
	if err != nil {
		return err
	}
	start := a.Time()
	if start.IsZero() {
		return fmt.Errorf("%w: activity %s has no time", activity.ErrNotSupported, a.ID())
	}
	kws := a.Keywords()
	if kws == nil {
		kws = []string{}
	}

	query := `
	INSERT INTO activities (
		id, title, description, what, public, keywords,
		start_time, last_time, point_count, gpx, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		what = EXCLUDED.what,
		public = EXCLUDED.public,
		keywords = EXCLUDED.keywords,
		start_time = EXCLUDED.start_time,
		last_time = EXCLUDED.last_time,
		point_count = EXCLUDED.point_count,
		gpx = EXCLUDED.gpx,
		updated_at = now()
	`
	_, err = s.pool.Exec(context.Background(), query,
		a.ID(), a.Title(), a.Description(), a.What(), a.Public(), kws,
		start.UTC(), a.LastTime().UTC(), a.PointCount(), gpx,
	)
	if err != nil {
		return fmt.Errorf("failed to write activity %s: %w", a.ID(), err)
	}
	return nil
}

// WriteAttribute implements backend.AttributeWriter. Keywords are changed
// with array_append and array_remove.
func (s *Store) WriteAttribute(a *activity.Activity, attr backend.Attribute, value string) error {
	var (
		query string
		arg   any
	)
	switch attr {
	case backend.AttrTitle:
		query, arg = `UPDATE activities SET title = $1, updated_at = now() WHERE id = $2`, a.Title()
	case backend.AttrDescription:
		query, arg = `UPDATE activities SET description = $1, updated_at = now() WHERE id = $2`, a.Description()
	case backend.AttrWhat:
		query, arg = `UPDATE activities SET what = $1, updated_at = now() WHERE id = $2`, a.What()
	case backend.AttrPublic:
		query, arg = `UPDATE activities SET public = $1, updated_at = now() WHERE id = $2`, a.Public()
	case backend.AttrAddKeyword:
		query, arg = `UPDATE activities SET keywords = array_append(keywords, $1), updated_at = now() WHERE id = $2`, value
	case backend.AttrRemoveKeyword:
		query, arg = `UPDATE activities SET keywords = array_remove(keywords, $1), updated_at = now() WHERE id = $2`, value
	default:
		return s.Write(a)
	}

	tag, err := s.pool.Exec(context.Background(), query, arg, a.ID())
	if err != nil {
		return fmt.Errorf("failed to write %s of %s: %w", attr, a.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, a.ID())
	}
	return nil
}

// Remove implements backend.Store.
func (s *Store) Remove(id string) error {
	tag, err := s.pool.Exec(context.Background(), `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove activity %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, id)
	}
	return nil
}

// Time implements backend.Store and returns the server clock.
func (s *Store) Time() (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(context.Background(), `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to query time: %w", err)
	}
	return now, nil
}

// Destroy implements backend.Store. The database itself is never dropped.
func (s *Store) Destroy() error {
	return nil
}

// Close implements backend.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ backend.Store           = (*Store)(nil)
	_ backend.AttributeWriter = (*Store)(nil)
)
