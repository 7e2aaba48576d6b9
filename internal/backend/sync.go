package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/observability"
)

// SyncReport counts what SyncFrom did.
type SyncReport struct {
	Added     int
	Replaced  int
	Removed   int
	Unchanged int
	Failed    int
}

// String formats the report for logs.
func (r SyncReport) String() string {
	return fmt.Sprintf("added=%d replaced=%d removed=%d unchanged=%d failed=%d",
		r.Added, r.Replaced, r.Removed, r.Unchanged, r.Failed)
}

// SyncOption configures SyncFrom.
type SyncOption func(*syncOptions)

type syncOptions struct {
	remove      bool
	remoteIdent bool
}

// WithRemove makes SyncFrom delete activities of the sink that have no
// counterpart in the source, so the sink ends up as a mirror.
func WithRemove() SyncOption {
	return func(o *syncOptions) {
		o.remove = true
	}
}

// WithRemoteIdent proposes the source id as sink id. An activity stored
// under that id in the sink is replaced when its content differs.
func WithRemoteIdent() SyncOption {
	return func(o *syncOptions) {
		o.remoteIdent = true
	}
}

// SyncFrom copies every activity of source that has no activity with the
// same Key in b. Without WithRemove nothing in b is ever deleted. With
// WithRemove, nothing is deleted either if any source activity could not be
// loaded; the returned error then wraps ErrRemovalSkipped.
//
// Failures of single activities do not stop the sync. They are counted,
// logged, and returned joined after all activities were attempted.
func (b *Backend) SyncFrom(source *Backend, opts ...SyncOption) (SyncReport, error) {
	var o syncOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()
	b.logger.Printf("Starting sync from %s to %s", source, b)

	var (
		report SyncReport
		errs   []error
	)
	fail := func(err error) {
		b.logger.Printf("WARNING: %v", err)
		report.Failed++
		errs = append(errs, err)
	}

	sinkKeys := make(map[string]int, b.Len())
	for _, mine := range b.Activities() {
		if err := mine.Load(); err != nil {
			fail(err)
			continue
		}
		sinkKeys[mine.Key()]++
	}

	sourceKeys := make(map[string]bool, source.Len())
	unreadable := 0
	for _, theirs := range source.Activities() {
		if err := theirs.Load(); err != nil {
			unreadable++
			fail(err)
			continue
		}
		key := theirs.Key()
		sourceKeys[key] = true

		if o.remoteIdent {
			if mine := b.Get(theirs.ID()); mine != nil {
				if !mine.IsLoaded() {
					continue
				}
				if mine.Key() == key {
					report.Unchanged++
					continue
				}
				old := mine.Key()
				if err := b.replace(mine, theirs); err != nil {
					fail(fmt.Errorf("failed to replace %s: %w", theirs.ID(), err))
					continue
				}
				sinkKeys[old]--
				sinkKeys[key]++
				report.Replaced++
				continue
			}
		}

		if sinkKeys[key] > 0 {
			report.Unchanged++
			continue
		}
		hint := ""
		if o.remoteIdent {
			hint = theirs.ID()
		}
		if _, err := b.SaveAs(theirs, hint); err != nil {
			fail(fmt.Errorf("failed to copy %s: %w", theirs.ID(), err))
			continue
		}
		sinkKeys[key]++
		report.Added++
	}

	if o.remove && unreadable > 0 {
		err := fmt.Errorf("%w: %d activities of %s could not be loaded", ErrRemovalSkipped, unreadable, source)
		b.logger.Printf("WARNING: %v", err)
		errs = append(errs, err)
	} else if o.remove {
		for _, mine := range b.Activities() {
			if !mine.IsLoaded() || sourceKeys[mine.Key()] {
				continue
			}
			if err := b.Remove(mine); err != nil {
				fail(fmt.Errorf("failed to remove %s: %w", mine.ID(), err))
				continue
			}
			report.Removed++
		}
	}

	if b.metrics {
		kind := b.store.Kind()
		observability.RecordSyncItems(kind, "added", report.Added)
		observability.RecordSyncItems(kind, "replaced", report.Replaced)
		observability.RecordSyncItems(kind, "removed", report.Removed)
		observability.RecordSyncItems(kind, "unchanged", report.Unchanged)
		observability.RecordSyncItems(kind, "failed", report.Failed)
		observability.RecordSyncCompleted(kind, start)
	}
	b.logger.Printf("Sync complete: %s", report)
	return report, errors.Join(errs...)
}

// replace overwrites the stored copy of mine with the content of theirs
// under the id of mine. The stored copy stays as it was if the write fails.
func (b *Backend) replace(mine, theirs *activity.Activity) error {
	fresh := theirs.Clone()
	fresh.SetID(mine.ID())
	if err := fresh.Bind(b); err != nil {
		return err
	}
	i, j := b.indexOf(mine), b.indexOf(fresh)
	b.activities[i] = fresh
	b.activities = append(b.activities[:j], b.activities[j+1:]...)
	mine.SetID("")
	return nil
}

// Fingerprints returns the Key of every activity in b, for comparing two
// backends.
func (b *Backend) Fingerprints() (map[string]int, error) {
	keys := make(map[string]int, b.Len())
	for _, a := range b.activities {
		if err := a.Load(); err != nil {
			return nil, err
		}
		keys[a.Key()]++
	}
	return keys, nil
}

var _ activity.Backend = (*Backend)(nil)
