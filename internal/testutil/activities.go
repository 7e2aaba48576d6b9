// Package testutil builds deterministic track documents and activities for
// tests across packages.
package testutil

import (
	"fmt"
	"math"
	"time"

	"github.com/gpxity/gpxity/internal/activity"
	"github.com/gpxity/gpxity/internal/track"
)

// BaseTime is the time of the first point of every generated document.
var BaseTime = time.Date(2017, time.March, 4, 9, 30, 0, 0, time.UTC)

// Document returns a short track near Berlin. The last point is placed about
// 100km away from the first one, rotated by idx*360/count degrees, so that
// documents built with different idx values have different angles.
func Document(count, idx int) *track.Document {
	if count <= 0 {
		count = 1
	}
	doc := track.New()
	var points []track.Point
	for i := 0; i < 5; i++ {
		points = append(points, track.Point{
			Latitude:     round(52.5 + 0.001*float64(i)),
			Longitude:    round(13.4 + 0.001*float64(i)),
			Elevation:    float64(40 + i),
			HasElevation: true,
			Time:         BaseTime.Add(time.Duration(i) * time.Minute),
		})
	}
	last := points[len(points)-1]
	theta := 2 * math.Pi * float64(idx) / float64(count)
	points = append(points, track.Point{
		Latitude:     round(last.Latitude + 0.9*math.Cos(theta)),
		Longitude:    round(last.Longitude + 0.001 + 1.4*math.Sin(theta)),
		Elevation:    60,
		HasElevation: true,
		Time:         last.Time.Add(10*time.Hour + time.Duration(idx)*time.Second),
	})
	doc.AppendPoints(points...)
	return doc
}

// Activity returns an unbound activity wrapping Document(count, idx) with a
// title, a description and the given what value.
func Activity(count, idx int, what string) *activity.Activity {
	a, err := activity.New(activity.WithDocument(Document(count, idx)))
	if err != nil {
		panic(err)
	}
	mustNil(a.SetTitle(fmt.Sprintf("Random GPX # %d", idx)))
	mustNil(a.SetDescription(fmt.Sprintf("Description to %d", idx)))
	if what == "" {
		what = activity.LegalWhat[idx%len(activity.LegalWhat)]
	}
	mustNil(a.SetWhat(what))
	return a
}

func round(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

func mustNil(err error) {
	if err != nil {
		panic(err)
	}
}
