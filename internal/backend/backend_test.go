package backend

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/testutil"
)

// memStore keeps serialized activities in a map.
type memStore struct {
	caps      activity.Capabilities
	files     map[string]string
	writes    int
	loads     int
	destroyed bool
	failWrite map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		caps:      activity.FullCapabilities(),
		files:     make(map[string]string),
		failWrite: make(map[string]bool),
	}
}

func (m *memStore) Kind() string { return "mem" }
func (m *memStore) Location() string { return "test" }
func (m *memStore) Capabilities() activity.Capabilities { return m.caps }
func (m *memStore) Time() (time.Time, error) { return testutil.BaseTime, nil }
func (m *memStore) Destroy() error { m.destroyed = true; return nil }
func (m *memStore) Close() error { return nil }

func (m *memStore) List() ([]string, error) {
	ids := make([]string, 0, len(m.files))
	for id := range m.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) NewID(a *activity.Activity, hint string) (string, error) {
	if hint != "" {
		if _, taken := m.files[hint]; !taken {
			return hint, nil
		}
	}
	max := 0
	for id := range m.files {
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1), nil
}

func (m *memStore) Load(a *activity.Activity) error {
	m.loads++
	raw, ok := m.files[a.ID()]
	if !ok {
		return fmt.Errorf("%s: %w", a.ID(), ErrNotFound)
	}
	return a.LoadWith(func() error { return a.Parse([]byte(raw)) })
}

func (m *memStore) Write(a *activity.Activity) error {
	if m.failWrite[a.Title()] {
		return errors.New("write refused")
	}
	xml, err := a.ToXML()
	if err != nil {
		return err
	}
	m.writes++
	m.files[a.ID()] = xml
	return nil
}

func (m *memStore) Remove(id string) error {
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(m.files, id)
	return nil
}

// attrStore additionally updates single fields.
type attrStore struct {
	*memStore
	attrs []Attribute
}

func (s *attrStore) WriteAttribute(a *activity.Activity, attr Attribute, value string) error {
	s.attrs = append(s.attrs, attr)
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func openBackend(t *testing.T, store Store, opts ...Option) *Backend {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	b, err := Open(store, opts...)
	require.NoError(t, err)
	return b
}

// populated returns a backend holding count test activities.
func populated(t *testing.T, count int) (*Backend, *memStore) {
	t.Helper()
	store := newMemStore()
	b := openBackend(t, store)
	for i := 0; i < count; i++ {
		_, err := b.Save(testutil.Activity(count, i, ""))
		require.NoError(t, err)
	}
	return b, store
}

func TestSave_AssignsIDs(t *testing.T) {
	b, store := populated(t, 3)
	require.Equal(t, 3, b.Len())
	require.Equal(t, 3, store.writes)
	for i := 0; i < 3; i++ {
		a := b.At(i)
		require.Equal(t, strconv.Itoa(i+1), a.ID())
		require.True(t, a.Backend() == activity.Backend(b))
		require.Same(t, a, b.Get(a.ID()))
	}
}

func TestSave_SaveAs(t *testing.T) {
	b := openBackend(t, newMemStore())
	a, err := b.SaveAs(testutil.Activity(1, 0, ""), "ride")
	require.NoError(t, err)
	require.Equal(t, "ride", a.ID())
}

func TestSave_ForeignIsCloned(t *testing.T) {
	src, _ := populated(t, 1)
	sink := openBackend(t, newMemStore())
	orig := src.At(0)
	copied, err := sink.Save(orig)
	require.NoError(t, err)
	require.NotSame(t, orig, copied)
	require.True(t, orig.Backend() == activity.Backend(src))
	require.True(t, copied.Backend() == activity.Backend(sink))
	require.Equal(t, orig.Key(), copied.Key())
}

func TestSave_BoundSavesAgain(t *testing.T) {
	b, store := populated(t, 1)
	a := b.At(0)
	again, err := b.Save(a)
	require.NoError(t, err)
	require.Same(t, a, again)
	require.Equal(t, 1, b.Len())
	require.Equal(t, 2, store.writes)
}

func TestSave_Capabilities(t *testing.T) {
	store := newMemStore()
	store.caps = store.caps.Without(activity.CapSaveEmpty)
	b := openBackend(t, store)

	empty, err := activity.New()
	require.NoError(t, err)
	_, err = b.Save(empty)
	require.ErrorIs(t, err, activity.ErrNotSupported)
	require.Nil(t, empty.Backend())
	require.Equal(t, 0, b.Len())

	store.caps = store.caps.Without(activity.CapSave)
	_, err = b.Save(testutil.Activity(1, 0, ""))
	require.ErrorIs(t, err, activity.ErrNotSupported)
}

func TestSave_WriteErrorKeepsNoID(t *testing.T) {
	store := newMemStore()
	b := openBackend(t, store)
	a := testutil.Activity(1, 0, "")
	store.failWrite[a.Title()] = true
	_, err := b.Save(a)
	require.Error(t, err)
	require.Equal(t, "", a.ID())
	require.Equal(t, 0, b.Len())
}

func TestScan(t *testing.T) {
	b, store := populated(t, 3)
	kept := b.At(0)

	other := openBackend(t, store)
	require.Equal(t, 3, other.Len())
	for _, a := range other.Activities() {
		require.False(t, a.IsLoaded(), "scan must create stubs")
	}
	require.Equal(t, 0, store.loads)

	_, err := other.Save(testutil.Activity(3, 2, "Sailing"))
	require.NoError(t, err)
	require.NoError(t, other.RemoveID("2"))

	unsaved, err := activity.New()
	require.NoError(t, err)
	b.Register(unsaved)

	require.Equal(t, 4, b.Len(), "b cannot know about other's changes before a scan")
	require.NoError(t, b.Scan())
	require.Equal(t, 4, b.Len())
	require.Same(t, kept, b.Get("1"))
	require.Nil(t, b.Get("2"))
	require.NotNil(t, b.Get("4"))
	require.True(t, b.Contains(unsaved))
}

func TestLoadFull(t *testing.T) {
	b, store := populated(t, 2)
	want := b.At(1).Key()

	other := openBackend(t, store)
	a := other.Get(b.At(1).ID())
	require.Equal(t, want, a.Key())
	require.Equal(t, 1, store.loads)
	require.NoError(t, other.LoadFull(a))
	require.Equal(t, 1, store.loads, "LoadFull must be idempotent")
}

func TestLoadFull_Error(t *testing.T) {
	b, store := populated(t, 1)
	other := openBackend(t, store)
	delete(store.files, b.At(0).ID())
	a := other.At(0)
	require.Equal(t, "", a.Title())
	require.ErrorIs(t, a.Err(), ErrNotFound)
}

func TestAttributeWrites_FullRewrite(t *testing.T) {
	b, store := populated(t, 1)
	a := b.At(0)
	before := store.writes

	require.NoError(t, a.SetTitle("renamed"))
	require.NoError(t, a.AddKeyword("Berlin"))
	require.NoError(t, a.SetPublic(true))
	require.Equal(t, before+3, store.writes)

	other := openBackend(t, store)
	got := other.Get(a.ID())
	require.Equal(t, "renamed", got.Title())
	require.Equal(t, []string{"Berlin"}, got.Keywords())
	require.True(t, got.Public())
}

func TestAttributeWrites_Native(t *testing.T) {
	mem := newMemStore()
	store := &attrStore{memStore: mem}
	b := openBackend(t, store)
	a, err := b.Save(testutil.Activity(1, 0, ""))
	require.NoError(t, err)
	writes := mem.writes

	require.NoError(t, a.SetTitle("native"))
	require.NoError(t, a.SetDescription("d"))
	require.NoError(t, a.SetWhat("Hiking"))
	require.NoError(t, a.AddKeyword("k"))
	require.NoError(t, a.RemoveKeyword("k"))
	require.Equal(t, writes, mem.writes, "native stores must not rewrite")
	require.Equal(t, []Attribute{AttrTitle, AttrDescription, AttrWhat, AttrAddKeyword, AttrRemoveKeyword}, store.attrs)
}

func TestBatch_OneWrite(t *testing.T) {
	b, store := populated(t, 1)
	a := b.At(0)
	before := store.writes
	err := a.Batch(func() error {
		for _, kw := range []string{"A", "B", "C"} {
			if err := a.AddKeyword(kw); err != nil {
				return err
			}
		}
		return a.SetTitle("batched")
	})
	require.NoError(t, err)
	require.Equal(t, before+1, store.writes)
}

func TestRemove(t *testing.T) {
	b, store := populated(t, 3)
	a := b.At(1)
	require.NoError(t, b.Remove(a))
	require.Equal(t, 2, b.Len())
	require.Equal(t, "", a.ID())
	require.Len(t, store.files, 2)

	require.ErrorIs(t, b.RemoveID("nope"), ErrNotFound)

	other, _ := populated(t, 1)
	require.ErrorIs(t, b.Remove(other.At(0)), ErrForeignActivity)

	store.caps = store.caps.Without(activity.CapRemove)
	require.ErrorIs(t, b.Remove(b.At(0)), activity.ErrNotSupported)
}

func TestRemoveAll(t *testing.T) {
	b, store := populated(t, 4)
	require.NoError(t, b.RemoveAll())
	require.Equal(t, 0, b.Len())
	require.Empty(t, store.files)
}

func TestDestroy(t *testing.T) {
	store := newMemStore()
	b := openBackend(t, store)
	_, err := b.Save(testutil.Activity(1, 0, ""))
	require.NoError(t, err)
	require.NoError(t, b.Destroy())
	require.False(t, store.destroyed)
	require.Len(t, store.files, 1)

	cleaned := openBackend(t, store, WithCleanup(true))
	require.NoError(t, cleaned.Destroy())
	require.True(t, store.destroyed)
	require.Empty(t, store.files)
}

func TestGetTime(t *testing.T) {
	b := openBackend(t, newMemStore())
	got, err := b.GetTime()
	require.NoError(t, err)
	require.True(t, got.Equal(testutil.BaseTime))
}

func TestString(t *testing.T) {
	b, _ := populated(t, 1)
	require.Equal(t, "mem:test", b.String())
	require.Contains(t, b.At(0).String(), "mem:test")
}
