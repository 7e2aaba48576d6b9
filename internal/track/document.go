// Package track holds the structural track document wrapped by an activity:
// tracks made of segments made of points, plus the free-text metadata fields
// (name, description, keyword string) that the GPX format carries.
//
// The types here are plain values so that copying and comparing documents
// never depends on the equality semantics of the GPX library. Parsing and
// serializing goes through gpxgo, see codec.go.
package track

import (
	"math"
	"time"
)

// Point is one recorded position.
type Point struct {
	Latitude  float64
	Longitude float64

	// Elevation is only meaningful when HasElevation is set.
	Elevation    float64
	HasElevation bool

	Time time.Time
}

// Segment is a continuous run of points.
type Segment struct {
	Points []Point
}

// Track groups segments.
type Track struct {
	Name     string
	Segments []Segment
}

// Document is the in-memory form of one GPX file.
type Document struct {
	Name        string
	Description string

	// Keywords is the raw comma separated keyword string as found in the
	// file. Activities keep their keywords elsewhere and only place an
	// encoded value here while serializing.
	Keywords string

	// Time is the document time. Nil means "derive from the first point".
	Time *time.Time

	Tracks []Track
}

// New returns an empty document.
func New() *Document {
	return &Document{}
}

// Clone returns a deep copy of d. The copy shares no slices or pointers with
// the original.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Name:        d.Name,
		Description: d.Description,
		Keywords:    d.Keywords,
	}
	if d.Time != nil {
		t := *d.Time
		out.Time = &t
	}
	if d.Tracks != nil {
		out.Tracks = make([]Track, len(d.Tracks))
	}
	for i, trk := range d.Tracks {
		out.Tracks[i].Name = trk.Name
		if trk.Segments == nil {
			continue
		}
		out.Tracks[i].Segments = make([]Segment, len(trk.Segments))
		for j, seg := range trk.Segments {
			if seg.Points == nil {
				continue
			}
			points := make([]Point, len(seg.Points))
			copy(points, seg.Points)
			out.Tracks[i].Segments[j].Points = points
		}
	}
	return out
}

// PointCount returns the total number of points over all tracks and segments.
func (d *Document) PointCount() int {
	if d == nil {
		return 0
	}
	count := 0
	for _, trk := range d.Tracks {
		for _, seg := range trk.Segments {
			count += len(seg.Points)
		}
	}
	return count
}

// Points returns all points of all tracks and segments in order.
func (d *Document) Points() []Point {
	if d == nil {
		return nil
	}
	points := make([]Point, 0, d.PointCount())
	for _, trk := range d.Tracks {
		for _, seg := range trk.Segments {
			points = append(points, seg.Points...)
		}
	}
	return points
}

// FirstPoint returns the first point of the first track and segment that has
// any points.
func (d *Document) FirstPoint() (Point, bool) {
	if d == nil {
		return Point{}, false
	}
	for _, trk := range d.Tracks {
		for _, seg := range trk.Segments {
			if len(seg.Points) > 0 {
				return seg.Points[0], true
			}
		}
	}
	return Point{}, false
}

// LastPoint returns the last point of the last track and segment that has
// any points.
func (d *Document) LastPoint() (Point, bool) {
	if d == nil {
		return Point{}, false
	}
	for i := len(d.Tracks) - 1; i >= 0; i-- {
		segs := d.Tracks[i].Segments
		for j := len(segs) - 1; j >= 0; j-- {
			if n := len(segs[j].Points); n > 0 {
				return segs[j].Points[n-1], true
			}
		}
	}
	return Point{}, false
}

// TimeBounds returns the earliest and latest point timestamps. Points without
// a timestamp are skipped. Both values are zero if no point has a time.
func (d *Document) TimeBounds() (start, end time.Time) {
	if d == nil {
		return
	}
	for _, trk := range d.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				if p.Time.IsZero() {
					continue
				}
				if start.IsZero() || p.Time.Before(start) {
					start = p.Time
				}
				if end.IsZero() || p.Time.After(end) {
					end = p.Time
				}
			}
		}
	}
	return start, end
}

// AppendPoints appends points to the last segment of the last track, creating
// the track and segment when the document has none.
func (d *Document) AppendPoints(points ...Point) {
	if len(d.Tracks) == 0 {
		d.Tracks = append(d.Tracks, Track{})
	}
	last := &d.Tracks[len(d.Tracks)-1]
	if len(last.Segments) == 0 {
		last.Segments = append(last.Segments, Segment{})
	}
	seg := &last.Segments[len(last.Segments)-1]
	seg.Points = append(seg.Points, points...)
}

// Angle returns the bearing in degrees [0,360) from the first to the last
// point. The earth is flat here: latitude is normalized by 90 degrees and
// longitude by 180 degrees. Documents without points and degenerate
// (identical first and last position) documents return 0.
func Angle(d *Document) float64 {
	if d == nil || len(d.Tracks) == 0 {
		return 0
	}
	first, ok := d.FirstPoint()
	if !ok {
		return 0
	}
	last, _ := d.LastPoint()
	normLat := (first.Latitude - last.Latitude) / 90.0
	normLong := (first.Longitude - last.Longitude) / 180.0
	norm := math.Sqrt(normLat*normLat + normLong*normLong)
	if norm == 0 {
		return 0
	}
	result := float64(int(math.Asin(normLong/norm) * (180 / math.Pi)))
	if normLat >= 0 {
		return math.Mod(360+result, 360)
	}
	return 180 - result
}

// PointsEqual compares two documents point by point. Only longitude,
// latitude and elevation are compared, timestamps are not. The first
// mismatch ends the comparison.
func PointsEqual(a, b *Document) bool {
	if a.PointCount() != b.PointCount() {
		return false
	}
	pa, pb := a.Points(), b.Points()
	for i := range pa {
		if !samePosition(pa[i], pb[i]) {
			return false
		}
	}
	return true
}

func samePosition(a, b Point) bool {
	if a.Longitude != b.Longitude || a.Latitude != b.Latitude {
		return false
	}
	if a.HasElevation != b.HasElevation {
		return false
	}
	return !a.HasElevation || a.Elevation == b.Elevation
}
