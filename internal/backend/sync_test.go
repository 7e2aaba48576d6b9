package backend

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gpxity/gpxity/internal/testutil"
)

func requireSameFingerprints(t *testing.T, want, got *Backend) {
	t.Helper()
	w, err := want.Fingerprints()
	require.NoError(t, err)
	g, err := got.Fingerprints()
	require.NoError(t, err)
	require.Equal(t, w, g)
}

func TestSyncFrom_Additive(t *testing.T) {
	source, _ := populated(t, 5)
	sink := openBackend(t, newMemStore())

	report, err := sink.SyncFrom(source)
	require.NoError(t, err)
	require.Equal(t, 5, report.Added)
	require.Equal(t, 5, sink.Len())
	requireSameFingerprints(t, source, sink)

	report, err = sink.SyncFrom(source)
	require.NoError(t, err)
	require.Equal(t, SyncReport{Unchanged: 5}, report)
	require.Equal(t, 5, sink.Len())

	// Activities are matched by content, so a changed title is a new
	// activity for the sink.
	require.NoError(t, source.At(0).SetTitle("changed in source"))
	report, err = sink.SyncFrom(source)
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)
	require.Equal(t, 6, sink.Len())
}

func TestSyncFrom_Remove(t *testing.T) {
	source, _ := populated(t, 5)
	sink, _ := populated(t, 4)
	for _, a := range sink.Activities() {
		doc := a.Document()
		for i := range doc.Tracks {
			for j := range doc.Tracks[i].Segments {
				pts := doc.Tracks[i].Segments[j].Points
				for k := range pts {
					pts[k].Time = pts[k].Time.Add(100 * time.Hour)
				}
			}
		}
		_, err := sink.Save(a)
		require.NoError(t, err)
	}

	_, err := sink.SyncFrom(source)
	require.NoError(t, err)
	require.Equal(t, 9, sink.Len())

	report, err := sink.SyncFrom(source, WithRemove())
	require.NoError(t, err)
	require.Equal(t, 4, report.Removed)
	require.Equal(t, 5, report.Unchanged)
	requireSameFingerprints(t, source, sink)
}

func TestSyncFrom_NeverShrinksWithoutRemove(t *testing.T) {
	source, _ := populated(t, 2)
	sink, _ := populated(t, 3)
	before := sink.Len()
	_, err := sink.SyncFrom(source)
	require.NoError(t, err)
	require.GreaterOrEqual(t, sink.Len(), before)
}

func TestSyncFrom_RemoteIdent(t *testing.T) {
	source := openBackend(t, newMemStore())
	for i, id := range []string{"alpha", "beta"} {
		_, err := source.SaveAs(testutil.Activity(2, i, ""), id)
		require.NoError(t, err)
	}
	sink := openBackend(t, newMemStore())

	report, err := sink.SyncFrom(source, WithRemoteIdent())
	require.NoError(t, err)
	require.Equal(t, 2, report.Added)
	require.NotNil(t, sink.Get("alpha"))
	require.NotNil(t, sink.Get("beta"))

	require.NoError(t, source.Get("alpha").SetDescription("edited"))
	report, err = sink.SyncFrom(source, WithRemoteIdent())
	require.NoError(t, err)
	require.Equal(t, SyncReport{Replaced: 1, Unchanged: 1}, report)
	require.Equal(t, 2, sink.Len())
	require.Equal(t, "edited", sink.Get("alpha").Description())
}

func TestSyncFrom_RemoteIdentKeepsCopyOnFailedWrite(t *testing.T) {
	source := openBackend(t, newMemStore())
	_, err := source.SaveAs(testutil.Activity(1, 0, ""), "alpha")
	require.NoError(t, err)
	store := newMemStore()
	sink := openBackend(t, store)
	_, err = sink.SyncFrom(source, WithRemoteIdent())
	require.NoError(t, err)
	kept := store.files["alpha"]

	require.NoError(t, source.Get("alpha").SetTitle("refused by sink"))
	store.failWrite["refused by sink"] = true
	report, err := sink.SyncFrom(source, WithRemoteIdent())
	require.Error(t, err)
	require.Contains(t, err.Error(), "write refused")
	require.Equal(t, SyncReport{Failed: 1}, report)
	require.Equal(t, 1, sink.Len())
	require.Equal(t, kept, store.files["alpha"])
	require.Equal(t, "Random GPX # 0", sink.Get("alpha").Title())
}

func TestSyncFrom_RemoveSkippedForUnreadableSource(t *testing.T) {
	source, sourceStore := populated(t, 3)
	sink := openBackend(t, newMemStore())
	_, err := sink.SyncFrom(source)
	require.NoError(t, err)

	broken := source.At(1).ID()
	sourceStore.files[broken] = "<gpx><trk>"
	reopened := openBackend(t, sourceStore)

	report, err := sink.SyncFrom(reopened, WithRemove())
	require.ErrorIs(t, err, ErrRemovalSkipped)
	require.Equal(t, SyncReport{Unchanged: 2, Failed: 1}, report)
	require.Equal(t, 3, sink.Len())

	// The load error names the activity and the backend once.
	require.Equal(t, 1, strings.Count(err.Error(), "failed to load "+broken))
}

func TestSyncFrom_PartialFailure(t *testing.T) {
	source, _ := populated(t, 3)
	store := newMemStore()
	sink := openBackend(t, store)
	store.failWrite[source.At(1).Title()] = true

	report, err := sink.SyncFrom(source)
	require.Error(t, err)
	require.Contains(t, err.Error(), "write refused")
	require.Equal(t, 2, report.Added)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 2, sink.Len())
}

func TestDiff(t *testing.T) {
	left, _ := populated(t, 3)
	right := openBackend(t, newMemStore())
	_, err := right.Save(left.At(0))
	require.NoError(t, err)
	_, err = right.Save(testutil.Activity(7, 5, ""))
	require.NoError(t, err)

	d := Diff(left, right, FingerprintKey)
	require.False(t, d.Equal())
	require.Len(t, d.KeysInBoth(), 1)
	require.Len(t, d.Left.ExclusiveActivities(), 2)
	require.Len(t, d.Right.ExclusiveActivities(), 1)
	for _, matches := range d.Matches {
		require.Len(t, matches, 2)
	}

	// All test activities start at the same time.
	byTime := Diff(left, right, nil)
	require.True(t, byTime.Equal())
	require.Len(t, byTime.Matches[StartTimeKey(left.At(0))], 5)
}
