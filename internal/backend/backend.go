// Package backend implements the collection of activities living in one
// storage endpoint, and the reconciliation between two such collections.
//
// A Backend wraps a Store driver. The Backend keeps the ordered list of
// activities, enforces capabilities and binding rules, and decides between
// single-field updates and full rewrites. Stores only move bytes.
//
// Example:
//
//	store, err := backend.NewStore("directory", backend.Location{Path: "~/gpx"})
//	if err != nil {
//	    return err
//	}
//	b, err := backend.Open(store)
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//	for _, a := range b.Activities() {
//	    fmt.Println(a.ID(), a.Title())
//	}
package backend

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/observability"
)

var (
	// ErrNotFound is returned when an id is not in the collection.
	ErrNotFound = errors.New("activity not found")

	// ErrForeignActivity is returned when removing an activity that is
	// bound to another backend.
	ErrForeignActivity = errors.New("activity belongs to a different backend")

	// ErrRemovalSkipped is returned by SyncFrom when it did not remove
	// anything because some source activities could not be loaded.
	ErrRemovalSkipped = errors.New("removal skipped, source incomplete")

	// ErrUnknownKind is returned by NewStore for unregistered kinds.
	ErrUnknownKind = errors.New("unknown store kind")
)

// Backend is an ordered collection of activities bound to one Store.
// It is not safe for concurrent use.
type Backend struct {
	store      Store
	activities []*activity.Activity
	logger     *log.Logger
	cleanup    bool
	metrics    bool

	// nextHint carries the id proposal from SaveAs through Bind, which
	// calls Save again.
	nextHint string
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. The default logs to stderr.
func WithLogger(l *log.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCleanup makes Destroy remove all activities and the store container.
func WithCleanup(cleanup bool) Option {
	return func(b *Backend) {
		b.cleanup = cleanup
	}
}

// WithMetrics enables or disables prometheus recording. It is enabled by
// default.
func WithMetrics(enabled bool) Option {
	return func(b *Backend) {
		b.metrics = enabled
	}
}

// Open wraps store and scans it.
func Open(store Store, opts ...Option) (*Backend, error) {
	b := &Backend{
		store:   store,
		logger:  log.New(os.Stderr, "[backend] ", log.LstdFlags),
		metrics: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.Scan(); err != nil {
		return nil, err
	}
	return b, nil
}

// Store returns the underlying driver.
func (b *Backend) Store() Store {
	return b.store
}

// Capabilities returns the capabilities of the store.
func (b *Backend) Capabilities() activity.Capabilities {
	return b.store.Capabilities()
}

// String returns kind:location.
func (b *Backend) String() string {
	return b.store.Kind() + ":" + b.store.Location()
}

// Len returns the number of activities.
func (b *Backend) Len() int {
	return len(b.activities)
}

// At returns the activity at position i.
func (b *Backend) At(i int) *activity.Activity {
	return b.activities[i]
}

// Get returns the activity with the given id, or nil.
func (b *Backend) Get(id string) *activity.Activity {
	if id == "" {
		return nil
	}
	for _, a := range b.activities {
		if a.ID() == id {
			return a
		}
	}
	return nil
}

// Contains reports whether a itself is in the collection.
func (b *Backend) Contains(a *activity.Activity) bool {
	return b.indexOf(a) >= 0
}

func (b *Backend) indexOf(a *activity.Activity) int {
	for i, mine := range b.activities {
		if mine == a {
			return i
		}
	}
	return -1
}

// Activities returns a copy of the collection.
func (b *Backend) Activities() []*activity.Activity {
	return append([]*activity.Activity(nil), b.activities...)
}

// Register adds a to the collection unless it is already there. It is called
// by activity.New for stubs and does not write anything.
func (b *Backend) Register(a *activity.Activity) {
	if !b.Contains(a) {
		b.activities = append(b.activities, a)
	}
}

// Scan refreshes the collection from the store. Activities that are still
// stored are kept as they are, new ids become unloaded stubs, vanished ids
// are dropped. Activities without id are never saved and stay.
func (b *Backend) Scan() error {
	ids, err := b.store.List()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", b, err)
	}
	stored := make(map[string]bool, len(ids))
	for _, id := range ids {
		stored[id] = true
	}

	kept := b.activities[:0:0]
	known := make(map[string]bool, len(b.activities))
	for _, a := range b.activities {
		if a.ID() == "" || stored[a.ID()] {
			kept = append(kept, a)
			known[a.ID()] = true
		}
	}
	b.activities = kept

	for _, id := range ids {
		if known[id] {
			continue
		}
		if _, err := activity.New(activity.WithBackend(b, id)); err != nil {
			return fmt.Errorf("failed to create stub %s: %w", id, err)
		}
	}
	return nil
}

// LoadFull fills a stub from the store. Loaded and loading activities are
// left alone.
func (b *Backend) LoadFull(a *activity.Activity) error {
	if a.IsLoaded() || a.IsLoading() {
		return nil
	}
	err := b.store.Load(a)
	if b.metrics {
		observability.RecordLoad(b.store.Kind(), err)
	}
	if err != nil {
		b.logger.Printf("WARNING: Failed to load %s from %s: %v", a.ID(), b, err)
		return fmt.Errorf("failed to load %s from %s: %w", a.ID(), b, err)
	}
	return nil
}

// Save writes a to this backend and returns the activity held here. An
// activity bound to another backend is copied. An unbound activity is bound
// to this backend.
func (b *Backend) Save(a *activity.Activity) (*activity.Activity, error) {
	return b.save(a, "")
}

// SaveAs is like Save but proposes id as the storage id. Stores may ignore
// the proposal.
func (b *Backend) SaveAs(a *activity.Activity, id string) (*activity.Activity, error) {
	return b.save(a, id)
}

func (b *Backend) save(a *activity.Activity, hint string) (*activity.Activity, error) {
	caps := b.store.Capabilities()
	if !caps.Has(activity.CapSave) {
		return nil, fmt.Errorf("%w: %s in %s", activity.ErrNotSupported, activity.CapSave, b)
	}
	if owner := a.Backend(); owner != nil && owner != activity.Backend(b) {
		a = a.Clone()
	}
	if a.Backend() == nil {
		if a.PointCount() == 0 && !caps.Has(activity.CapSaveEmpty) {
			return nil, fmt.Errorf("%w: %s in %s", activity.ErrNotSupported, activity.CapSaveEmpty, b)
		}
		b.nextHint = hint
		defer func() { b.nextHint = "" }()
		if err := a.Bind(b); err != nil {
			return nil, err
		}
		return a, nil
	}

	if a.PointCount() == 0 && !caps.Has(activity.CapSaveEmpty) {
		return nil, fmt.Errorf("%w: %s in %s", activity.ErrNotSupported, activity.CapSaveEmpty, b)
	}
	if hint == "" {
		hint = b.nextHint
	}
	assigned := false
	if a.ID() == "" {
		id, err := b.store.NewID(a, hint)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate id in %s: %w", b, err)
		}
		a.SetID(id)
		assigned = true
	}
	err := b.store.Write(a)
	if b.metrics {
		observability.RecordWrite(b.store.Kind(), "save", err)
	}
	if err != nil {
		if assigned {
			a.SetID("")
		}
		return nil, fmt.Errorf("failed to save %s: %w", a.ID(), err)
	}
	b.Register(a)
	return a, nil
}

// Remove deletes a from the store and the collection. Its id is cleared.
func (b *Backend) Remove(a *activity.Activity) error {
	if !b.store.Capabilities().Has(activity.CapRemove) {
		return fmt.Errorf("%w: %s in %s", activity.ErrNotSupported, activity.CapRemove, b)
	}
	if a.Backend() != activity.Backend(b) {
		return ErrForeignActivity
	}
	if a.ID() != "" {
		err := b.store.Remove(a.ID())
		if b.metrics {
			observability.RecordWrite(b.store.Kind(), "remove", err)
		}
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", a.ID(), err)
		}
	}
	if i := b.indexOf(a); i >= 0 {
		b.activities = append(b.activities[:i], b.activities[i+1:]...)
	}
	a.SetID("")
	return nil
}

// RemoveID removes the activity with the given id.
func (b *Backend) RemoveID(id string) error {
	a := b.Get(id)
	if a == nil {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, b)
	}
	return b.Remove(a)
}

// RemoveAll removes every activity in the collection. It does not scan
// first. All removals are attempted; their errors are joined.
func (b *Backend) RemoveAll() error {
	var errs []error
	for _, a := range b.Activities() {
		if err := b.Remove(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetTime returns the current time of the storage endpoint.
func (b *Backend) GetTime() (time.Time, error) {
	return b.store.Time()
}

// Destroy removes all activities and the store container if the backend
// was opened with cleanup. Otherwise it does nothing.
func (b *Backend) Destroy() error {
	if !b.cleanup {
		return nil
	}
	if err := b.RemoveAll(); err != nil {
		return err
	}
	return b.store.Destroy()
}

// Close releases the store.
func (b *Backend) Close() error {
	return b.store.Close()
}

// ChangeTitle stores a changed title.
func (b *Backend) ChangeTitle(a *activity.Activity) error {
	return b.change(a, AttrTitle, "")
}

// ChangeDescription stores a changed description.
func (b *Backend) ChangeDescription(a *activity.Activity) error {
	return b.change(a, AttrDescription, "")
}

// ChangeWhat stores a changed activity type.
func (b *Backend) ChangeWhat(a *activity.Activity) error {
	return b.change(a, AttrWhat, "")
}

// ChangePublic stores a changed public flag.
func (b *Backend) ChangePublic(a *activity.Activity) error {
	return b.change(a, AttrPublic, "")
}

// AddKeyword stores an added keyword.
func (b *Backend) AddKeyword(a *activity.Activity, value string) error {
	return b.change(a, AttrAddKeyword, value)
}

// RemoveKeyword stores a removed keyword.
func (b *Backend) RemoveKeyword(a *activity.Activity, value string) error {
	return b.change(a, AttrRemoveKeyword, value)
}

// change writes one attribute, natively if the store can, otherwise by
// rewriting the whole activity.
func (b *Backend) change(a *activity.Activity, attr Attribute, value string) error {
	if a.ID() == "" {
		_, err := b.Save(a)
		return err
	}
	var err error
	if w, ok := b.store.(AttributeWriter); ok {
		err = w.WriteAttribute(a, attr, value)
	} else {
		err = b.store.Write(a)
	}
	if b.metrics {
		observability.RecordWrite(b.store.Kind(), string(attr), err)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s of %s: %w", attr, a.ID(), err)
	}
	return nil
}
