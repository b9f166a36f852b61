// Package metrics exposes Prometheus instrumentation for cache hit/miss
// rates, check latency, and per-policy verdict counts (expansion,
// ambient). Grounded on the retrieved kubedoio-n-kudo repo's
// internal/edge/metrics package: package-level vars registered once via
// an init(), and an http.Handler for the scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHits counts cache hits by cache name ("crl" or "ocsp").
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revoke_core_cache_hits_total",
		Help: "Total cache hits by cache",
	}, []string{"cache"})

	// CacheMisses counts cache misses by cache name ("crl" or "ocsp").
	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revoke_core_cache_misses_total",
		Help: "Total cache misses by cache",
	}, []string{"cache"})

	// CheckDuration tracks Engine.Check latency in seconds, by policy.
	CheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revoke_core_check_duration_seconds",
		Help:    "Revocation check duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"policy"})

	// VerdictsTotal counts check verdicts by policy and result
	// ("valid"/"revoked").
	VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revoke_core_verdicts_total",
		Help: "Total revocation check verdicts by policy and result",
	}, []string{"policy", "result"})

	// SourceFailuresTotal counts per-source failures by source ("ocsp" or
	// "crl") and error kind (revokeerr.Kind.String()).
	SourceFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revoke_core_source_failures_total",
		Help: "Total per-source check failures by source and error kind",
	}, []string{"source", "kind"})
)

func init() {
	prometheus.MustRegister(
		CacheHits,
		CacheMisses,
		CheckDuration,
		VerdictsTotal,
		SourceFailuresTotal,
	)
}

// Handler returns the /metrics scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCheck records a completed Engine.Check's duration and verdict.
func RecordCheck(policy string, durationSeconds float64, valid bool) {
	CheckDuration.WithLabelValues(policy).Observe(durationSeconds)
	result := "valid"
	if !valid {
		result = "revoked"
	}
	VerdictsTotal.WithLabelValues(policy, result).Inc()
}

// RecordCacheHit records a cache hit for the named cache.
func RecordCacheHit(cache string) { CacheHits.WithLabelValues(cache).Inc() }

// RecordCacheMiss records a cache miss for the named cache.
func RecordCacheMiss(cache string) { CacheMisses.WithLabelValues(cache).Inc() }

// RecordSourceFailure records a per-source check failure.
func RecordSourceFailure(source, kind string) {
	SourceFailuresTotal.WithLabelValues(source, kind).Inc()
}
