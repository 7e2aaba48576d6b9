package backend

import (
	"sort"
	"time"

	"github.com/gpxity/gpxity/internal/activity"
)

// KeyFunc maps an activity to the value two backends are compared by.
type KeyFunc func(a *activity.Activity) string

// StartTimeKey compares activities by their start time.
func StartTimeKey(a *activity.Activity) string {
	t := a.Time()
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// FingerprintKey compares activities by Key.
func FingerprintKey(a *activity.Activity) string {
	return a.Key()
}

// DiffSide groups the activities of one backend by key.
type DiffSide struct {
	Backend *Backend
	Entries map[string][]*activity.Activity

	// Exclusive holds the entries whose key is missing on the other side.
	Exclusive map[string][]*activity.Activity
}

func newDiffSide(b *Backend, key KeyFunc) *DiffSide {
	side := &DiffSide{
		Backend:   b,
		Entries:   make(map[string][]*activity.Activity),
		Exclusive: make(map[string][]*activity.Activity),
	}
	for _, a := range b.activities {
		k := key(a)
		side.Entries[k] = append(side.Entries[k], a)
	}
	return side
}

func (s *DiffSide) useOther(other *DiffSide) {
	for k, entries := range s.Entries {
		if _, ok := other.Entries[k]; !ok {
			s.Exclusive[k] = entries
		}
	}
}

// ExclusiveActivities returns the exclusive activities ordered by key.
func (s *DiffSide) ExclusiveActivities() []*activity.Activity {
	keys := make([]string, 0, len(s.Exclusive))
	for k := range s.Exclusive {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []*activity.Activity
	for _, k := range keys {
		out = append(out, s.Exclusive[k]...)
	}
	return out
}

// BackendDiff compares two backends by a key.
type BackendDiff struct {
	Left  *DiffSide
	Right *DiffSide

	// Matches holds, per key present on both sides, the left activities
	// followed by the right ones.
	Matches map[string][]*activity.Activity
}

// Diff compares left and right. A nil key compares by start time.
func Diff(left, right *Backend, key KeyFunc) *BackendDiff {
	if key == nil {
		key = StartTimeKey
	}
	d := &BackendDiff{
		Left:    newDiffSide(left, key),
		Right:   newDiffSide(right, key),
		Matches: make(map[string][]*activity.Activity),
	}
	d.Left.useOther(d.Right)
	d.Right.useOther(d.Left)
	for k, entries := range d.Left.Entries {
		if theirs, ok := d.Right.Entries[k]; ok {
			d.Matches[k] = append(append(d.Matches[k], entries...), theirs...)
		}
	}
	return d
}

// KeysInBoth returns the sorted keys present on both sides.
func (d *BackendDiff) KeysInBoth() []string {
	keys := make([]string, 0, len(d.Matches))
	for k := range d.Matches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both sides have the same key set.
func (d *BackendDiff) Equal() bool {
	return len(d.Left.Exclusive) == 0 && len(d.Right.Exclusive) == 0
}
