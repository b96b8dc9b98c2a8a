// Package metrics exposes Prometheus collectors for the monitor service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	probesTotal                *prometheus.CounterVec
	probeDurationSeconds       *prometheus.HistogramVec
	notificationsTotal         *prometheus.CounterVec
	sweepDeletedTotal          *prometheus.CounterVec
	triggersDroppedTotal       prometheus.Counter
	scheduledSites             prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		probesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_probes_total",
				Help: "Completed probes, labeled by device and outcome.",
			},
			[]string{"device", "outcome"},
		)

		probeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitewatch_probe_duration_seconds",
				Help:    "Wall time of probes from launch to commit, labeled by device.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"device"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_notifications_total",
				Help: "Alert deliveries, labeled by result.",
			},
			[]string{"result"},
		)

		sweepDeletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_sweep_deleted_total",
				Help: "Items removed by the retention sweep, labeled by kind.",
			},
			[]string{"kind"},
		)

		triggersDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitewatch_triggers_dropped_total",
				Help: "Ad-hoc probe requests dropped because the queue was full.",
			},
		)

		scheduledSites = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitewatch_scheduled_sites",
				Help: "Number of sites with a recurring probe registered.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveProbe records a completed probe.
func ObserveProbe(device, outcome string, duration time.Duration) {
	Init()
	probesTotal.WithLabelValues(device, outcome).Inc()
	probeDurationSeconds.WithLabelValues(device).Observe(duration.Seconds())
}

// ObserveNotification records an alert delivery result ("sent" or "failed").
func ObserveNotification(result string) {
	Init()
	notificationsTotal.WithLabelValues(result).Inc()
}

// ObserveSweep adds removed items of kind ("logs" or "screenshots").
func ObserveSweep(kind string, n int64) {
	Init()
	if n > 0 {
		sweepDeletedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveTriggerDropped counts an ad-hoc request dropped at the queue.
func ObserveTriggerDropped() {
	Init()
	triggersDroppedTotal.Inc()
}

// SetScheduledSites sets the recurring job gauge.
func SetScheduledSites(n int) {
	Init()
	scheduledSites.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
