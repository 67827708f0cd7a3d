package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OutlineFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_outline_fetch_total",
		Help: "Building outline fetches by source and result",
	}, []string{"source", "result"})
	OutlineFetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listingmap_outline_fetch_duration_ms",
		Help:    "Building outline fetch duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"source"})
	OutlineCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_outline_cache_hits_total",
		Help: "Outline cache hits by cache layer",
	}, []string{"cache"})
	OutlineCacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_outline_cache_misses_total",
		Help: "Outline cache misses by cache layer",
	}, []string{"cache"})
	SourceHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_outline_source_heartbeat_total",
		Help: "Outline source heartbeat count by status",
	}, []string{"source", "status"})
	SnapRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_snap_refresh_total",
		Help: "Snap index refreshes by outcome (applied, stale, failed)",
	}, []string{"outcome"})
	SnapQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_snap_queries_total",
		Help: "Snap queries by resulting kind",
	}, []string{"kind"})
	WizardTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_wizard_transitions_total",
		Help: "Wizard events by type and whether the step changed",
	}, []string{"event", "changed"})
	LayersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listingmap_layers_created_total",
		Help: "Layers handed to the layer store by source",
	}, []string{"source"})
	LayersDiscardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listingmap_layers_discarded_total",
		Help: "Uncommitted layers removed on back/close",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listingmap_rate_limited_total",
		Help: "Requests rejected by the token bucket",
	})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listingmap_active_sessions",
		Help: "Wizard sessions currently held in memory",
	})
)

func init() {
	prometheus.MustRegister(OutlineFetchTotal)
	prometheus.MustRegister(OutlineFetchDurationMs)
	prometheus.MustRegister(OutlineCacheHitsTotal)
	prometheus.MustRegister(OutlineCacheMissesTotal)
	prometheus.MustRegister(SourceHeartbeatTotal)
	prometheus.MustRegister(SnapRefreshTotal)
	prometheus.MustRegister(SnapQueriesTotal)
	prometheus.MustRegister(WizardTransitionsTotal)
	prometheus.MustRegister(LayersCreatedTotal)
	prometheus.MustRegister(LayersDiscardedTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(ActiveSessions)
}

// Handler 暴露已注册指标，供 Prometheus 抓取
func Handler() http.Handler { return promhttp.Handler() }
