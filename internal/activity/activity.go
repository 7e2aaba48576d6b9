// Package activity holds the Activity entity: one recorded GPS activity
// with its track document and the attributes title, description, what,
// public and keywords.
//
// An activity is either unbound (owned by the caller) or bound to exactly one
// backend. Bound activities start as stubs and are filled on the first access
// to their content. Changing an attribute of a bound activity writes the
// change through to the backend immediately unless a Batch is open:
//
//	err := a.Batch(func() error {
//	    if err := a.SetTitle("Evening ride"); err != nil {
//	        return err
//	    }
//	    return a.AddKeyword("Berlin")
//	})
//
// Activities are not safe for concurrent use.
package activity

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gpxity/gpxity/internal/keywords"
	"github.com/gpxity/gpxity/internal/track"
)

// Activity is one GPS activity.
type Activity struct {
	backend Backend
	id      string

	doc      *track.Document
	what     string
	public   bool
	keywords []string

	loaded   bool
	loading  bool
	batching bool
	loadErr  error
}

// Option configures New.
type Option func(*options)

type options struct {
	backend Backend
	id      string
	doc     *track.Document
}

// WithBackend creates a stub for the stored activity id of b. The content
// is loaded on first access.
func WithBackend(b Backend, id string) Option {
	return func(o *options) {
		o.backend = b
		o.id = id
	}
}

// WithDocument creates an unbound activity around doc. The activity takes
// ownership of doc. Reserved entries in doc.Keywords become the what and
// public attributes.
func WithDocument(doc *track.Document) Option {
	return func(o *options) {
		o.doc = doc
	}
}

// New creates an activity. Without options it is unbound and empty.
func New(opts ...Option) (*Activity, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend != nil && o.doc != nil {
		return nil, ErrInvalidConstruction
	}

	a := &Activity{
		what: DefaultWhat,
		doc:  track.New(),
	}
	if o.doc != nil {
		decoded := keywords.Decode(o.doc.Keywords)
		if decoded.HasWhat && decoded.What != "" && !IsLegalWhat(decoded.What) {
			return nil, fmt.Errorf("%w: %q", ErrIllegalWhat, decoded.What)
		}
		if decoded.HasWhat && decoded.What != "" {
			a.what = decoded.What
		}
		a.keywords = decoded.Plain
		a.public = decoded.Public
		o.doc.Keywords = ""
		a.doc = o.doc
	}

	if o.backend == nil {
		a.loaded = true
		return a, nil
	}
	a.backend = o.backend
	a.id = o.id
	o.backend.Register(a)
	return a, nil
}

// ID returns the backend id. It is empty while the activity is not stored.
func (a *Activity) ID() string {
	return a.id
}

// SetID is used by backends when assigning or changing the storage id.
func (a *Activity) SetID(id string) {
	a.id = id
}

// Backend returns the backend a is bound to, or nil.
func (a *Activity) Backend() Backend {
	return a.backend
}

// Bind assigns a to b and saves it there. Binding to the current backend
// again does nothing. A bound activity can neither be moved nor unbound.
func (a *Activity) Bind(b Backend) error {
	switch {
	case b == nil && a.backend == nil:
		return nil
	case b == nil:
		return ErrIllegalUnbind
	case a.backend == b:
		return nil
	case a.backend != nil:
		return ErrIllegalRebind
	}
	a.backend = b
	_, err := b.Save(a)
	return err
}

// Clone returns an unbound deep copy of a without id.
func (a *Activity) Clone() *Activity {
	a.loadFull()
	return &Activity{
		doc:      a.doc.Clone(),
		what:     a.what,
		public:   a.public,
		keywords: append([]string(nil), a.keywords...),
		loaded:   true,
	}
}

// Save writes a to its backend.
func (a *Activity) Save() error {
	if a.backend == nil {
		return ErrNoBackend
	}
	_, err := a.backend.Save(a)
	return err
}

// IsLoaded reports whether the content is in memory.
func (a *Activity) IsLoaded() bool {
	return a.loaded
}

// IsLoading reports whether a is being filled by its backend.
func (a *Activity) IsLoading() bool {
	return a.loading
}

// Err returns the error of the last failed on-demand load.
func (a *Activity) Err() error {
	return a.loadErr
}

// Load fills a stub from its backend and returns any error. Getters do the
// same implicitly.
func (a *Activity) Load() error {
	if a.backend == nil || a.loaded || a.loading {
		return nil
	}
	err := a.backend.LoadFull(a)
	a.loadErr = err
	return err
}

func (a *Activity) loadFull() {
	_ = a.Load()
}

// LoadWith runs fn as a loading scope: write-through and on-demand loading
// are off while fn runs. On success a is marked as loaded.
func (a *Activity) LoadWith(fn func() error) error {
	prev := a.loading
	a.loading = true
	defer func() { a.loading = prev }()
	if err := fn(); err != nil {
		return err
	}
	a.loaded = true
	return nil
}

func (a *Activity) writeThrough() bool {
	return a.backend != nil && !a.loading && !a.batching
}

// require returns ErrNotSupported if a is bound to a backend lacking c.
// Batched changes are checked as well since they reach the backend on the
// final save.
func (a *Activity) require(c Capability) error {
	if a.backend == nil || a.loading || a.backend.Capabilities().Has(c) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotSupported, c)
}

// Batch runs fn with write-through suspended. Afterwards a is saved once if
// fn succeeded and write-through is active again, so nested batches only
// save at the outermost level.
func (a *Activity) Batch(fn func() error) error {
	var err error
	func() {
		prev := a.batching
		a.batching = true
		defer func() { a.batching = prev }()
		err = fn()
	}()
	if err != nil {
		return err
	}
	if a.writeThrough() {
		_, err = a.backend.Save(a)
	}
	return err
}

// Title returns the title.
func (a *Activity) Title() string {
	a.loadFull()
	return a.doc.Name
}

// SetTitle changes the title.
func (a *Activity) SetTitle(value string) error {
	a.loadFull()
	if value == a.doc.Name {
		return nil
	}
	if err := a.require(CapWriteTitle); err != nil {
		return err
	}
	a.doc.Name = value
	if a.writeThrough() {
		return a.backend.ChangeTitle(a)
	}
	return nil
}

// Description returns the description.
func (a *Activity) Description() string {
	a.loadFull()
	return a.doc.Description
}

// SetDescription changes the description.
func (a *Activity) SetDescription(value string) error {
	a.loadFull()
	if value == a.doc.Description {
		return nil
	}
	if err := a.require(CapWriteDescription); err != nil {
		return err
	}
	a.doc.Description = value
	if a.writeThrough() {
		return a.backend.ChangeDescription(a)
	}
	return nil
}

// What returns the activity type.
func (a *Activity) What() string {
	a.loadFull()
	return a.what
}

// SetWhat changes the activity type. The empty string selects DefaultWhat.
func (a *Activity) SetWhat(value string) error {
	if value == "" {
		value = DefaultWhat
	}
	if !IsLegalWhat(value) {
		return fmt.Errorf("%w: %q", ErrIllegalWhat, value)
	}
	a.loadFull()
	if value == a.what {
		return nil
	}
	if err := a.require(CapWriteWhat); err != nil {
		return err
	}
	a.what = value
	if a.writeThrough() {
		return a.backend.ChangeWhat(a)
	}
	return nil
}

// Public reports whether the activity is visible to others.
func (a *Activity) Public() bool {
	a.loadFull()
	return a.public
}

// SetPublic changes the public flag.
func (a *Activity) SetPublic(value bool) error {
	a.loadFull()
	if value == a.public {
		return nil
	}
	if err := a.require(CapWritePublic); err != nil {
		return err
	}
	a.public = value
	if a.writeThrough() {
		return a.backend.ChangePublic(a)
	}
	return nil
}

// Time returns the document time, or the time of the first point when the
// document has none.
func (a *Activity) Time() time.Time {
	a.loadFull()
	if a.doc.Time != nil {
		return *a.doc.Time
	}
	start, _ := a.doc.TimeBounds()
	return start
}

// SetTime changes the document time. The zero time clears it. The change is
// not written through.
func (a *Activity) SetTime(value time.Time) {
	a.loadFull()
	if value.IsZero() {
		a.doc.Time = nil
		return
	}
	if a.doc.Time != nil && a.doc.Time.Equal(value) {
		return
	}
	a.doc.Time = &value
}

// AdjustTime sets the document time to the time of the first point.
func (a *Activity) AdjustTime() {
	a.loadFull()
	start, _ := a.doc.TimeBounds()
	if start.IsZero() {
		a.doc.Time = nil
		return
	}
	a.doc.Time = &start
}

// LastTime returns the time of the last point.
func (a *Activity) LastTime() time.Time {
	a.loadFull()
	_, end := a.doc.TimeBounds()
	return end
}

// PointCount returns the number of track points.
func (a *Activity) PointCount() int {
	a.loadFull()
	return a.doc.PointCount()
}

// Points returns all track points in order.
func (a *Activity) Points() []track.Point {
	a.loadFull()
	return a.doc.Points()
}

// Document returns the track document. Changes made to it are not written
// through; call Save afterwards.
func (a *Activity) Document() *track.Document {
	a.loadFull()
	return a.doc
}

// AddPoints appends points to the last segment. Appending the same points
// that already end the track fails with ErrDuplicatePoints.
func (a *Activity) AddPoints(points ...track.Point) error {
	if len(points) == 0 {
		return nil
	}
	a.loadFull()
	existing := a.doc.Points()
	if len(existing) >= len(points) {
		tail := &track.Document{}
		tail.AppendPoints(existing[len(existing)-len(points):]...)
		incoming := &track.Document{}
		incoming.AppendPoints(points...)
		if track.PointsEqual(tail, incoming) {
			return ErrDuplicatePoints
		}
	}
	a.doc.AppendPoints(points...)
	return nil
}

// Keywords returns a copy of the plain keywords.
func (a *Activity) Keywords() []string {
	a.loadFull()
	return append([]string(nil), a.keywords...)
}

func (a *Activity) hasKeyword(value string) bool {
	for _, kw := range a.keywords {
		if kw == value {
			return true
		}
	}
	return false
}

func checkKeyword(value string) error {
	if value == "" {
		return ErrEmptyKeyword
	}
	if keywords.IsReserved(value) {
		return fmt.Errorf("%w: %q", ErrReservedKeyword, value)
	}
	return nil
}

// AddKeyword adds a plain keyword.
func (a *Activity) AddKeyword(value string) error {
	value = strings.TrimSpace(value)
	if err := checkKeyword(value); err != nil {
		return err
	}
	a.loadFull()
	if a.hasKeyword(value) {
		return fmt.Errorf("%w: %q", ErrDuplicateKeyword, value)
	}
	if err := a.require(CapWriteKeywords); err != nil {
		return err
	}
	a.keywords = append(a.keywords, value)
	if a.writeThrough() {
		return a.backend.AddKeyword(a, value)
	}
	return nil
}

// RemoveKeyword removes a plain keyword. Removing an absent keyword does
// nothing.
func (a *Activity) RemoveKeyword(value string) error {
	value = strings.TrimSpace(value)
	if err := checkKeyword(value); err != nil {
		return err
	}
	a.loadFull()
	if !a.hasKeyword(value) {
		return nil
	}
	if err := a.require(CapWriteKeywords); err != nil {
		return err
	}
	kept := a.keywords[:0:0]
	for _, kw := range a.keywords {
		if kw != value {
			kept = append(kept, kw)
		}
	}
	a.keywords = kept
	if a.writeThrough() {
		return a.backend.RemoveKeyword(a, value)
	}
	return nil
}

// SetKeywords replaces all plain keywords with values, keeping their order.
// Nothing changes if values holds an empty, reserved or repeated keyword.
func (a *Activity) SetKeywords(values []string) error {
	trimmed := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if err := checkKeyword(v); err != nil {
			return err
		}
		if seen[v] {
			return fmt.Errorf("%w: %q", ErrDuplicateKeyword, v)
		}
		seen[v] = true
		trimmed = append(trimmed, v)
	}
	a.loadFull()
	if slices.Equal(trimmed, a.keywords) {
		return nil
	}
	if err := a.require(CapWriteKeywords); err != nil {
		return err
	}
	return a.Batch(func() error {
		a.keywords = trimmed
		return nil
	})
}

// Parse replaces the content of a with the GPX document in raw. A non-empty
// title or description in raw wins over the current one. A What: keyword
// sets the activity type, a Status:public keyword makes a public. Empty
// input is ignored.
func (a *Activity) Parse(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	doc, err := track.Parse(raw)
	if err != nil {
		return err
	}
	decoded := keywords.Decode(doc.Keywords)
	if decoded.HasWhat && decoded.What != "" && !IsLegalWhat(decoded.What) {
		return fmt.Errorf("%w: %q", ErrIllegalWhat, decoded.What)
	}
	return a.LoadWith(func() error {
		if doc.Name == "" {
			doc.Name = a.doc.Name
		}
		if doc.Description == "" {
			doc.Description = a.doc.Description
		}
		doc.Keywords = ""
		a.doc = doc
		if decoded.HasWhat {
			if err := a.SetWhat(decoded.What); err != nil {
				return err
			}
		}
		a.keywords = decoded.Plain
		a.public = a.public || decoded.Public
		return nil
	})
}

// ToXML serializes a as GPX 1.1. what and public are encoded into the
// keyword string.
func (a *Activity) ToXML() (string, error) {
	if err := a.Load(); err != nil {
		return "", err
	}
	saved := a.doc.Keywords
	a.doc.Keywords = keywords.Encode(a.keywords, a.what, a.public)
	defer func() { a.doc.Keywords = saved }()
	out, err := track.Marshal(a.doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize activity %s: %w", a.id, err)
	}
	return string(out), nil
}

// Angle returns the bearing from the first to the last point in degrees.
func (a *Activity) Angle() float64 {
	a.loadFull()
	return track.Angle(a.doc)
}

// PointsEqual compares the positions of all points of a and other.
func (a *Activity) PointsEqual(other *Activity) bool {
	a.loadFull()
	other.loadFull()
	return track.PointsEqual(a.doc, other.doc)
}

// Key returns a fingerprint of the content. Two activities with the same key
// are considered identical when syncing.
func (a *Activity) Key() string {
	a.loadFull()
	kws := append([]string(nil), a.keywords...)
	sort.Strings(kws)
	last := "none"
	if _, end := a.doc.TimeBounds(); !end.IsZero() {
		last = end.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("title:%s description:%s keywords:%s what:%s public:%t last_time:%s angle:%v points:%d",
		a.doc.Name, a.doc.Description, strings.Join(kws, ","), a.what, a.public,
		last, track.Angle(a.doc), a.doc.PointCount())
}

// String returns a short description. It does not load stubs.
func (a *Activity) String() string {
	var b strings.Builder
	b.WriteString("Activity(")
	if a.backend != nil {
		if s, ok := a.backend.(fmt.Stringer); ok {
			b.WriteString(s.String())
			b.WriteString(" ")
		}
	}
	if a.id != "" {
		fmt.Fprintf(&b, "id:%s ", a.id)
	}
	if !a.loaded {
		b.WriteString("unloaded)")
		return b.String()
	}
	fmt.Fprintf(&b, "%s", a.what)
	if a.doc.Name != "" {
		fmt.Fprintf(&b, " %s", a.doc.Name)
	}
	if start, end := a.doc.TimeBounds(); !start.IsZero() {
		fmt.Fprintf(&b, " %s-%s", start.Format(time.DateTime), end.Format(time.DateTime))
	}
	fmt.Fprintf(&b, " %d points angle=%v)", a.doc.PointCount(), track.Angle(a.doc))
	return b.String()
}
