package track

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/tkrajina/gpxgo/gpx"
)

// Creator is written into the creator attribute of serialized documents.
const Creator = "gpxity"

var (
	trkptPattern     = regexp.MustCompile(`(?s)<trkpt\b.*?</trkpt>`)
	interTagSpace    = regexp.MustCompile(`>\s+<`)
	emptyLinkPattern = regexp.MustCompile(`<link(\s+href="")?\s*(/>|>\s*</link>)`)
	blankLines       = regexp.MustCompile(`\n[ \t]*\n+`)
)

// Parse decodes GPX data. Waypoints and routes are not kept; an activity is
// made of tracks only.
func Parse(data []byte) (*Document, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gpx: %w", err)
	}
	return fromGPX(g), nil
}

// ReadFile reads and decodes the GPX file at path.
func ReadFile(path string) (*Document, error) {
	// #nosec G304 - path is controlled by the store
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gpx file: %w", err)
	}
	return Parse(data)
}

// Marshal encodes d as GPX 1.1.
//
// The output has exactly one line per track point so that line based diffs
// of two versions show point level changes. Empty link elements the GPX
// library emits for unset metadata are removed.
func Marshal(d *Document) ([]byte, error) {
	out, err := toGPX(d).ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gpx: %w", err)
	}
	return normalize(out), nil
}

func normalize(out []byte) []byte {
	out = trkptPattern.ReplaceAllFunc(out, func(pt []byte) []byte {
		return interTagSpace.ReplaceAll(pt, []byte("><"))
	})
	out = bytes.ReplaceAll(out, []byte("</trkpt><"), []byte("</trkpt>\n<"))
	out = emptyLinkPattern.ReplaceAll(out, nil)
	out = blankLines.ReplaceAll(out, []byte("\n"))
	return out
}

func fromGPX(g *gpx.GPX) *Document {
	d := &Document{
		Name:        g.Name,
		Description: g.Description,
		Keywords:    g.Keywords,
	}
	if g.Time != nil {
		t := g.Time.UTC()
		d.Time = &t
	}
	for _, gt := range g.Tracks {
		trk := Track{Name: gt.Name}
		for _, gs := range gt.Segments {
			seg := Segment{Points: make([]Point, 0, len(gs.Points))}
			for _, gp := range gs.Points {
				p := Point{
					Latitude:  gp.Latitude,
					Longitude: gp.Longitude,
				}
				if gp.Elevation.NotNull() {
					p.Elevation = gp.Elevation.Value()
					p.HasElevation = true
				}
				if !gp.Timestamp.IsZero() {
					p.Time = gp.Timestamp.UTC()
				}
				seg.Points = append(seg.Points, p)
			}
			trk.Segments = append(trk.Segments, seg)
		}
		d.Tracks = append(d.Tracks, trk)
	}
	return d
}

func toGPX(d *Document) *gpx.GPX {
	g := &gpx.GPX{
		Version:     "1.1",
		Creator:     Creator,
		Name:        d.Name,
		Description: d.Description,
		Keywords:    d.Keywords,
	}
	if d.Time != nil {
		t := d.Time.UTC()
		g.Time = &t
	}
	for _, trk := range d.Tracks {
		gt := gpx.GPXTrack{Name: trk.Name}
		for _, seg := range trk.Segments {
			gs := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(seg.Points))}
			for _, p := range seg.Points {
				var gp gpx.GPXPoint
				gp.Latitude = p.Latitude
				gp.Longitude = p.Longitude
				if p.HasElevation {
					gp.Elevation.SetValue(p.Elevation)
				}
				gp.Timestamp = p.Time
				gs.Points = append(gs.Points, gp)
			}
			gt.Segments = append(gt.Segments, gs)
		}
		g.Tracks = append(g.Tracks, gt)
	}
	return g
}
