package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var EventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mercury_client",
	Subsystem: "localcache",
	Name:      "events_ingested",
}, []string{"class", "result"})

var DeletionsApplied = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "mercury_client",
	Subsystem: "tombstone",
	Name:      "deletions_applied",
})

var CacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "mercury_client",
	Subsystem: "localcache",
	Name:      "entries",
}, []string{"index"})

var CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "mercury_client",
	Subsystem: "localcache",
	Name:      "evictions",
})

var FeedRefreshDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "mercury_client",
	Subsystem: "feed",
	Name:      "refresh_duration_seconds",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"feed", "mode"})

var FeedStates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mercury_client",
	Subsystem: "feed",
	Name:      "state_changes",
}, []string{"feed", "state"})

var SelectedRelays = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "mercury_client",
	Subsystem: "outbox",
	Name:      "selected_relays",
}, []string{"pass"})

var UnreachableAuthors = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "mercury_client",
	Subsystem: "outbox",
	Name:      "unreachable_authors",
})

// Collectors returns every collector of the client
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		EventsIngested,
		DeletionsApplied,
		CacheEntries,
		CacheEvictions,
		FeedRefreshDuration,
		FeedStates,
		SelectedRelays,
		UnreachableAuthors,
	}
}

// Register registers every collector with reg. Collectors that are already
// registered are not an error, so several servers can share a registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}
