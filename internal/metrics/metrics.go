package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bilgisen/feedcore/internal/feed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	feedUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcore_feed_updates_total",
		Help: "Finished feed update cycles by result",
	}, []string{"result"})

	feedChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedcore_feed_changes_total",
		Help: "Update cycles that installed a feed with a new hash",
	})

	feedUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedcore_feed_update_duration_seconds",
		Help:    "Duration of feed update cycles",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	feedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedcore_feed_items",
		Help: "Content items in the cached feed",
	})

	schedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcore_scheduler_runs_total",
		Help: "Periodic jobs started by the scheduler",
	}, []string{"job"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcore_http_requests_total",
		Help: "HTTP API requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedcore_http_request_duration_seconds",
		Help:    "Latency of HTTP API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveFeedUpdate records a finished update cycle. It has the signature of
// a feed.Listener.
func ObserveFeedUpdate(e feed.UpdateEvent) {
	result := "success"
	if e.Err != nil {
		result = "failure"
	}
	feedUpdates.WithLabelValues(result).Inc()
	feedUpdateDuration.Observe(e.Duration.Seconds())
	if e.Changed {
		feedChanges.Inc()
	}
	feedItems.Set(float64(e.Items))
}

// ObserveSchedulerRun counts a scheduled job start
func ObserveSchedulerRun(job string) {
	schedulerRuns.WithLabelValues(job).Inc()
}

// ObserveRequest records one served HTTP request
func ObserveRequest(method, route string, status int, latency time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(latency.Seconds())
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
