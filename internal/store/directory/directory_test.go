package directory

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/testutil"
)

func openBackend(t *testing.T, s *Store, opts ...backend.Option) *backend.Backend {
	t.Helper()
	opts = append(opts, backend.WithLogger(log.New(io.Discard, "", 0)))
	b, err := backend.Open(s, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return b
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func TestSaveAndReload(t *testing.T) {
	s := newStore(t)
	b := openBackend(t, s)
	a := testutil.Activity(3, 0, "Hiking")
	if err := a.AddKeyword("Berlin"); err != nil {
		t.Fatalf("AddKeyword() failed: %v", err)
	}
	saved, err := b.Save(a)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if saved.ID() != "Random GPX # 0" {
		t.Errorf("ID() = %q, want the title", saved.ID())
	}
	if _, err := os.Stat(s.Path(saved.ID())); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	other := openBackend(t, s)
	if other.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", other.Len())
	}
	got := other.At(0)
	if got.IsLoaded() {
		t.Error("scan must not load")
	}
	if got.Key() != a.Key() {
		t.Errorf("Key() after reload:\n%s\nwant\n%s", got.Key(), a.Key())
	}
}

func TestNewID_Unique(t *testing.T) {
	s := newStore(t)
	b := openBackend(t, s)
	var ids []string
	for i := 0; i < 3; i++ {
		a := testutil.Activity(3, i, "")
		if err := a.SetTitle("same/title"); err != nil {
			t.Fatalf("SetTitle() failed: %v", err)
		}
		saved, err := b.Save(a)
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		ids = append(ids, saved.ID())
	}
	want := []string{"same_title", "same_title.1", "same_title.2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestNewID_Fallbacks(t *testing.T) {
	s := newStore(t)
	b := openBackend(t, s)

	hinted, err := b.SaveAs(testutil.Activity(1, 0, ""), "from-remote")
	if err != nil {
		t.Fatalf("SaveAs() failed: %v", err)
	}
	if hinted.ID() != "from-remote" {
		t.Errorf("ID() = %q, want the hint", hinted.ID())
	}

	untitled := testutil.Activity(1, 0, "")
	_ = untitled.SetTitle("")
	saved, err := b.Save(untitled)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if len(saved.ID()) != 36 {
		t.Errorf("ID() = %q, want a uuid", saved.ID())
	}
}

func TestServerDirectory_NumericIDs(t *testing.T) {
	s := newStore(t, WithNumericIDs())
	if s.Kind() != ServerKind {
		t.Errorf("Kind() = %q", s.Kind())
	}
	b := openBackend(t, s)
	for i, want := range []string{"1", "2", "3"} {
		saved, err := b.Save(testutil.Activity(3, i, ""))
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if saved.ID() != want {
			t.Errorf("ID() = %q, want %q", saved.ID(), want)
		}
	}
	if err := b.RemoveID("2"); err != nil {
		t.Fatalf("RemoveID() failed: %v", err)
	}
	saved, _ := b.Save(testutil.Activity(3, 0, "Sailing"))
	if saved.ID() != "4" {
		t.Errorf("ID() = %q, want 4", saved.ID())
	}
}

func TestModTimeAndLinks(t *testing.T) {
	s := newStore(t)
	b := openBackend(t, s)
	a, err := b.Save(testutil.Activity(1, 0, ""))
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	info, err := os.Stat(s.Path(a.ID()))
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if !info.ModTime().Equal(testutil.BaseTime) {
		t.Errorf("ModTime() = %v, want %v", info.ModTime(), testutil.BaseTime)
	}

	link := filepath.Join(s.Location(), "2017", "03", a.Title())
	dest, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink() failed: %v", err)
	}
	if dest != s.Path(a.ID()) {
		t.Errorf("link points to %s, want %s", dest, s.Path(a.ID()))
	}

	if err := b.Remove(a); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if _, err := os.Lstat(link); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("link still exists after Remove(): %v", err)
	}
}

func TestLinkName(t *testing.T) {
	if got := LinkName("a/b", testutil.BaseTime); got != "a_b" {
		t.Errorf("LinkName() = %q", got)
	}
	if got := LinkName("", testutil.BaseTime); got != "04_09:30:00" {
		t.Errorf("LinkName() = %q, want 04_09:30:00", got)
	}
}

func TestAttributeChangeRewrites(t *testing.T) {
	s := newStore(t)
	b := openBackend(t, s)
	a, _ := b.Save(testutil.Activity(1, 0, ""))
	if err := a.SetPublic(true); err != nil {
		t.Fatalf("SetPublic() failed: %v", err)
	}
	if err := a.SetWhat("Swimming"); err != nil {
		t.Fatalf("SetWhat() failed: %v", err)
	}

	got := openBackend(t, s).Get(a.ID())
	if !got.Public() || got.What() != "Swimming" {
		t.Errorf("Public()=%v What()=%q after reload", got.Public(), got.What())
	}
}

func TestReadOnly(t *testing.T) {
	dir := t.TempDir()
	rw, _ := New(dir)
	b := openBackend(t, rw)
	if _, err := b.Save(testutil.Activity(1, 0, "")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	ro, err := New(dir, WithReadOnly())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	rb := openBackend(t, ro)
	if rb.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rb.Len())
	}
	if err := rb.At(0).SetTitle("nope"); !errors.Is(err, activity.ErrNotSupported) {
		t.Errorf("SetTitle() = %v, want ErrNotSupported", err)
	}
	if _, err := rb.Save(testutil.Activity(1, 0, "")); !errors.Is(err, activity.ErrNotSupported) {
		t.Errorf("Save() = %v, want ErrNotSupported", err)
	}
	if err := rb.Remove(rb.At(0)); !errors.Is(err, activity.ErrNotSupported) {
		t.Errorf("Remove() = %v, want ErrNotSupported", err)
	}
}

func TestTemporaryDirectory(t *testing.T) {
	s, err := New("")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	b := openBackend(t, s, backend.WithCleanup(true))
	if _, err := b.Save(testutil.Activity(1, 0, "")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy() failed: %v", err)
	}
	if _, err := os.Stat(s.Location()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary directory still exists: %v", err)
	}
}

func TestRegistered(t *testing.T) {
	for _, kind := range []string{Kind, ServerKind} {
		if !backend.IsRegistered(kind) {
			t.Errorf("%s not registered", kind)
		}
	}
	store, err := backend.NewStore(Kind, backend.Location{
		Path:    t.TempDir(),
		Options: map[string]string{"readonly": "true"},
	})
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	if store.Capabilities().Len() != 0 {
		t.Errorf("readonly store has capabilities %s", store.Capabilities())
	}
	if _, err := backend.NewStore(Kind, backend.Location{Path: t.TempDir(), Options: map[string]string{"readonly": "maybe"}}); err == nil {
		t.Error("NewStore() accepted an invalid readonly option")
	}
}

func TestSyncMirror(t *testing.T) {
	source := openBackend(t, newStore(t))
	for i := 0; i < 5; i++ {
		if _, err := source.Save(testutil.Activity(5, i, "")); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
	sink := openBackend(t, newStore(t))
	if _, err := sink.SyncFrom(source); err != nil {
		t.Fatalf("SyncFrom() failed: %v", err)
	}
	if sink.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", sink.Len())
	}
	if err := source.At(0).SetTitle("changed"); err != nil {
		t.Fatalf("SetTitle() failed: %v", err)
	}
	if _, err := sink.SyncFrom(source, backend.WithRemove()); err != nil {
		t.Fatalf("SyncFrom() failed: %v", err)
	}
	diff := backend.Diff(source, sink, backend.FingerprintKey)
	if !diff.Equal() || sink.Len() != 5 {
		t.Errorf("sink is no mirror: len=%d", sink.Len())
	}
}
