// Package directory stores activities as GPX files in a local directory.
//
// Every activity lives in <root>/<id>.gpx. Ids are derived from the title
// and made unique by appending .1, .2 and so on. The file modification time
// is set to the activity time, and a by-month tree of symbolic links
// (<root>/YYYY/MM/<title>) makes the files browsable by date.
//
// The serverdirectory kind uses numeric ids instead, like most web services
// do.
package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/backend"
)

// Store kinds.
const (
	Kind       = "directory"
	ServerKind = "serverdirectory"
)

const suffix = ".gpx"

func init() {
	backend.Register(Kind, open)
	backend.Register(ServerKind, openServer)
}

// Store is a directory of GPX files.
type Store struct {
	root     string
	created  bool
	readonly bool
	numeric  bool
}

// Option configures a Store.
type Option func(*Store)

// WithReadOnly refuses every write.
func WithReadOnly() Option {
	return func(s *Store) {
		s.readonly = true
	}
}

// WithNumericIDs allocates ids as max existing numeric id + 1.
func WithNumericIDs() Option {
	return func(s *Store) {
		s.numeric = true
	}
}

// New opens the directory at path, creating it if needed. An empty path
// allocates a temporary directory which Destroy removes again.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}

	if path == "" {
		dir, err := os.MkdirTemp("", "gpxity.")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary directory: %w", err)
		}
		s.root = dir
		s.created = true
		return s, nil
	}

	root, err := expand(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", root, err)
	}
	s.root = root
	return s, nil
}

func expand(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to find home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

func options(loc backend.Location) ([]Option, error) {
	var opts []Option
	if v := loc.Option("readonly"); v != "" {
		ro, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid readonly option %q: %w", v, err)
		}
		if ro {
			opts = append(opts, WithReadOnly())
		}
	}
	return opts, nil
}

func open(loc backend.Location) (backend.Store, error) {
	opts, err := options(loc)
	if err != nil {
		return nil, err
	}
	return New(loc.Path, opts...)
}

func openServer(loc backend.Location) (backend.Store, error) {
	opts, err := options(loc)
	if err != nil {
		return nil, err
	}
	return New(loc.Path, append(opts, WithNumericIDs())...)
}

// Kind implements backend.Store.
func (s *Store) Kind() string {
	if s.numeric {
		return ServerKind
	}
	return Kind
}

// Location implements backend.Store.
func (s *Store) Location() string {
	return s.root
}

// Capabilities implements backend.Store.
func (s *Store) Capabilities() activity.Capabilities {
	if s.readonly {
		return activity.NewCapabilities()
	}
	return activity.FullCapabilities()
}

// Path returns the file name for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.root, id+suffix)
}

// List implements backend.Store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), suffix))
	}
	return ids, nil
}

func (s *Store) exists(id string) bool {
	_, err := os.Lstat(s.Path(id))
	return err == nil
}

// NewID implements backend.Store.
func (s *Store) NewID(a *activity.Activity, hint string) (string, error) {
	if s.numeric {
		return s.nextNumber()
	}
	value := sanitize(hint)
	if value == "" {
		value = sanitize(a.Title())
	}
	if value == "" {
		value = uuid.NewString()
	}
	unique := value
	for n := 1; s.exists(unique); n++ {
		unique = fmt.Sprintf("%s.%d", value, n)
	}
	return unique, nil
}

func (s *Store) nextNumber() (string, error) {
	ids, err := s.List()
	if err != nil {
		return "", err
	}
	max := 0
	for _, id := range ids {
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1), nil
}

// sanitize turns a title into a usable file name.
func sanitize(value string) string {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(value)
	return strings.TrimLeft(value, ".")
}

// Load implements backend.Store.
func (s *Store) Load(a *activity.Activity) error {
	raw, err := os.ReadFile(s.Path(a.ID()))
	if err != nil {
		return fmt.Errorf("failed to read activity: %w", err)
	}
	return a.LoadWith(func() error {
		return a.Parse(raw)
	})
}

// Write implements backend.Store. The file is replaced atomically.
func (s *Store) Write(a *activity.Activity) error {
	if s.readonly {
		return fmt.Errorf("%w: %s is read only", activity.ErrNotSupported, s.root)
	}
	xml, err := a.ToXML()
	if err != nil {
		return err
	}

	path := s.Path(a.ID())
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err := tmp.WriteString(xml); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	t := a.Time()
	if t.IsZero() {
		return nil
	}
	if err := os.Chtimes(path, t, t); err != nil {
		return fmt.Errorf("failed to set time of %s: %w", path, err)
	}
	return s.link(path, a.Title(), t)
}

// LinkName returns the name of the by-month link for an activity.
func LinkName(title string, t time.Time) string {
	if name := sanitize(title); name != "" {
		return name
	}
	return fmt.Sprintf("%02d_%02d:%02d:%02d", t.Day(), t.Hour(), t.Minute(), t.Second())
}

func (s *Store) link(path, title string, t time.Time) error {
	dir := filepath.Join(s.root, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	linkPath := filepath.Join(dir, LinkName(title, t))
	if _, err := os.Lstat(linkPath); err == nil {
		if err := os.Remove(linkPath); err != nil {
			return fmt.Errorf("failed to replace link %s: %w", linkPath, err)
		}
	}
	if err := os.Symlink(path, linkPath); err != nil {
		return fmt.Errorf("failed to link %s: %w", linkPath, err)
	}
	return nil
}

// Remove implements backend.Store. By-month links pointing to the file are
// removed as well.
func (s *Store) Remove(id string) error {
	if s.readonly {
		return fmt.Errorf("%w: %s is read only", activity.ErrNotSupported, s.root)
	}
	path := s.Path(id)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove activity: %w", err)
	}
	return s.unlink(path)
}

func (s *Store) unlink(target string) error {
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if dest, err := os.Readlink(p); err == nil && dest == target {
			return os.Remove(p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove links to %s: %w", target, err)
	}
	return nil
}

// Time implements backend.Store.
func (s *Store) Time() (time.Time, error) {
	return time.Now(), nil
}

// Destroy removes the directory if New allocated it.
func (s *Store) Destroy() error {
	if !s.created {
		return nil
	}
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.root, err)
	}
	return nil
}

// Close implements backend.Store.
func (s *Store) Close() error {
	return nil
}

var _ backend.Store = (*Store)(nil)
