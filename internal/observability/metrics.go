// Package observability holds the prometheus collectors of gpxity. They are
// registered with the default registry and served by the dashboard.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

var (
	writesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gpxity",
		Subsystem: "backend",
		Name:      "writes_total",
		Help:      "Number of store writes by store kind, operation and outcome.",
	}, []string{"kind", "op", "outcome"})

	loadsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gpxity",
		Subsystem: "backend",
		Name:      "loads_total",
		Help:      "Number of activities loaded from a store by store kind and outcome.",
	}, []string{"kind", "outcome"})

	syncItemsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gpxity",
		Subsystem: "sync",
		Name:      "items_total",
		Help:      "Activities handled by sync, by sink kind and result.",
	}, []string{"kind", "result"})

	syncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gpxity",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Duration of complete sync runs by sink kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gpxity",
		Subsystem: "sync",
		Name:      "last_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed sync.",
	})

	watchEventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gpxity",
		Subsystem: "watch",
		Name:      "events_total",
		Help:      "File system events handled by the mirror daemon, by operation.",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(writesCounter, loadsCounter, syncItemsCounter, syncDuration, lastSyncGauge, watchEventsCounter)
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}

// RecordWrite counts one store write. op is "save", "remove" or an
// attribute name.
func RecordWrite(kind, op string, err error) {
	writesCounter.WithLabelValues(kind, op, outcome(err)).Inc()
}

// RecordLoad counts one full load.
func RecordLoad(kind string, err error) {
	loadsCounter.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordSyncItems adds n activities with the given result ("added",
// "replaced", "removed", "unchanged", "failed").
func RecordSyncItems(kind, result string, n int) {
	if n <= 0 {
		return
	}
	syncItemsCounter.WithLabelValues(kind, result).Add(float64(n))
}

// RecordSyncCompleted observes the duration of a sync run that started at
// start and updates the completion watermark.
func RecordSyncCompleted(kind string, start time.Time) {
	now := time.Now()
	syncDuration.WithLabelValues(kind).Observe(now.Sub(start).Seconds())
	lastSyncGauge.Set(float64(now.Unix()))
}

// RecordWatchEvent counts one handled file system event.
func RecordWatchEvent(op string) {
	watchEventsCounter.WithLabelValues(op).Inc()
}
