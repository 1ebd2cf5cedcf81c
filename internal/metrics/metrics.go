// Package metrics registers the Prometheus collectors exported by the
// daemon: pipeline/session gauges, WAL append counters, effect dispatch
// counters, scheduler fire counters, and coordination lock gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the dedicated collector registry for this daemon instance,
// kept separate from the default global registry so tests can construct
// independent instances without collector-already-registered panics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	PipelinesActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "oj_pipelines_active",
		Help: "Number of pipelines not in a terminal phase.",
	})

	SessionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "oj_sessions_active",
		Help: "Number of live agent sessions.",
	})

	WALAppendsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "oj_wal_appends_total",
		Help: "Total write-ahead log operations appended.",
	})

	EffectsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "oj_effects_total",
		Help: "Total effects dispatched by the executor, by kind.",
	}, []string{"kind"})

	SchedulerFiresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "oj_scheduler_fires_total",
		Help: "Total scheduler entries fired, by kind.",
	}, []string{"kind"})

	LocksStale = factory.NewGauge(prometheus.GaugeOpts{
		Name: "oj_locks_stale",
		Help: "Number of coordination locks currently stale.",
	})
)

// Handler returns the http.Handler that serves this registry's metrics in
// the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr. It blocks until the
// listener fails; callers typically run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
