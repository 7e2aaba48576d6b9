package sqlite

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/testutil"
)

func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openBackend(t *testing.T, s *Store) *backend.Backend {
	t.Helper()
	b, err := backend.Open(s, backend.WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)
	return b
}

func TestOpen_Idempotent(t *testing.T) {
	path := testDBPath(t)
	s := openStore(t, path)
	require.NoError(t, s.InitSchema(t.Context()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second Close() must be a no-op")

	again := openStore(t, path)
	ids, err := again.List()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestSaveAndLoad(t *testing.T) {
	path := testDBPath(t)
	b := openBackend(t, openStore(t, path))
	a := testutil.Activity(3, 1, "Kayaking")
	require.NoError(t, a.SetKeywords([]string{"A", "Berlin"}))
	require.NoError(t, a.SetPublic(true))
	saved, err := b.Save(a)
	require.NoError(t, err)
	require.Equal(t, "1", saved.ID())

	other := openBackend(t, openStore(t, path))
	require.Equal(t, 1, other.Len())
	got := other.At(0)
	require.False(t, got.IsLoaded())
	require.Equal(t, a.Key(), got.Key())
	require.Equal(t, "Kayaking", got.What())
	require.True(t, got.Public())
}

func TestNativeAttributeUpdates(t *testing.T) {
	s := openStore(t, testDBPath(t))
	b := openBackend(t, s)
	a, err := b.Save(testutil.Activity(1, 0, ""))
	require.NoError(t, err)

	var before string
	require.NoError(t, s.RawDB().QueryRow(`SELECT gpx FROM activities WHERE id = ?`, a.ID()).Scan(&before))

	require.NoError(t, a.SetTitle("native title"))
	require.NoError(t, a.SetDescription("native description"))
	require.NoError(t, a.SetWhat("Rowing"))
	require.NoError(t, a.SetPublic(true))
	require.NoError(t, a.AddKeyword("Berlin"))
	require.NoError(t, a.AddKeyword("Spree"))
	require.NoError(t, a.RemoveKeyword("Berlin"))

	var after string
	require.NoError(t, s.RawDB().QueryRow(`SELECT gpx FROM activities WHERE id = ?`, a.ID()).Scan(&after))
	require.Equal(t, before, after, "attribute changes must not rewrite the document")

	got := openBackend(t, s).Get(a.ID())
	require.Equal(t, "native title", got.Title())
	require.Equal(t, "native description", got.Description())
	require.Equal(t, "Rowing", got.What())
	require.True(t, got.Public())
	require.Equal(t, []string{"Spree"}, got.Keywords())
}

func TestNoSaveEmpty(t *testing.T) {
	b := openBackend(t, openStore(t, testDBPath(t)))
	empty, err := activity.New()
	require.NoError(t, err)
	_, err = b.Save(empty)
	require.ErrorIs(t, err, activity.ErrNotSupported)
}

func TestRemove(t *testing.T) {
	s := openStore(t, testDBPath(t))
	b := openBackend(t, s)
	for i := 0; i < 3; i++ {
		_, err := b.Save(testutil.Activity(3, i, ""))
		require.NoError(t, err)
	}
	require.NoError(t, b.RemoveID("2"))
	ids, err := s.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1", "3"}, ids)

	next, err := b.Save(testutil.Activity(3, 0, "Sailing"))
	require.NoError(t, err)
	require.Equal(t, "4", next.ID())

	require.True(t, errors.Is(s.Remove("2"), backend.ErrNotFound))
}

func TestTime(t *testing.T) {
	s := openStore(t, testDBPath(t))
	now, err := s.Time()
	require.NoError(t, err)
	require.False(t, now.IsZero())
}

func TestTemporaryDatabase(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	b, err := backend.Open(s, backend.WithCleanup(true), backend.WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)
	_, err = b.Save(testutil.Activity(1, 0, ""))
	require.NoError(t, err)
	require.NoError(t, b.Destroy())
	require.NoError(t, b.Close())
	require.NoFileExists(t, s.Location())
}

func TestSyncFromDirectoryLikeSource(t *testing.T) {
	source := openBackend(t, openStore(t, testDBPath(t)))
	for i := 0; i < 5; i++ {
		_, err := source.Save(testutil.Activity(5, i, ""))
		require.NoError(t, err)
	}
	sink := openBackend(t, openStore(t, testDBPath(t)))
	report, err := sink.SyncFrom(source)
	require.NoError(t, err)
	require.Equal(t, 5, report.Added)

	require.NoError(t, source.At(2).AddKeyword("changed"))
	report, err = sink.SyncFrom(source, backend.WithRemove())
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)
	require.Equal(t, 1, report.Removed)
	require.True(t, backend.Diff(source, sink, backend.FingerprintKey).Equal())
}

func TestRegistered(t *testing.T) {
	store, err := backend.NewStore(Kind, backend.Location{Path: testDBPath(t)})
	require.NoError(t, err)
	require.Equal(t, Kind, store.Kind())
	require.NoError(t, store.Close())
}
