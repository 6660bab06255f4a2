package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	slotsRefreshed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "slots_refreshed_total",
			Help:      "Count of free slot computations by strategy.",
		},
		[]string{"strategy"},
	)

	unmatchedIntervals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "busy_intervals_unmatched_total",
			Help:      "Count of busy intervals whose tokens were not found in the slot grid.",
		},
	)

	staleRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "slots_refresh_stale_total",
			Help:      "Count of refresh results discarded because a newer refresh started.",
		},
	)

	sessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "sessions_evicted_total",
			Help:      "Count of idle session boards dropped by the janitor.",
		},
	)

	bookingResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "booking_resolved_total",
			Help:      "Count of slot resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	calendarDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slotbook",
			Name:      "calendar_request_duration_seconds",
			Help:      "Latency of calendar service requests.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"endpoint", "status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "calendar_cache_lookups_total",
			Help:      "Count of calendar cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			slotsRefreshed,
			unmatchedIntervals,
			staleRefreshes,
			sessionsEvicted,
			bookingResolved,
			calendarDuration,
			cacheLookups,
			httpRequests,
		)
	})
}

func IncSlotsRefreshed(strategy string) {
	slotsRefreshed.WithLabelValues(strategy).Inc()
}

func AddUnmatchedIntervals(n int) {
	if n > 0 {
		unmatchedIntervals.Add(float64(n))
	}
}

func IncStaleRefresh() {
	staleRefreshes.Inc()
}

func AddSessionsEvicted(n int) {
	if n > 0 {
		sessionsEvicted.Add(float64(n))
	}
}

func IncBookingResolved(outcome string) {
	bookingResolved.WithLabelValues(outcome).Inc()
}

func ObserveCalendarRequest(endpoint, status string, elapsed time.Duration) {
	calendarDuration.WithLabelValues(endpoint, status).Observe(elapsed.Seconds())
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}
