package security

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// AuthorizationDenied counts operations refused because the token was
	// unknown, inactive, or not an owner.
	AuthorizationDenied *prometheus.CounterVec

	// IDAllocationAttempts tracks how many candidates an allocation needed.
	IDAllocationAttempts *prometheus.HistogramVec
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "case_recorder_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "case_recorder_cache_hits_total",
		Help: "Total decoded-iteration cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "case_recorder_cache_misses_total",
		Help: "Total decoded-iteration cache misses",
	})

	AuthorizationDenied = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_recorder_authorization_denied_total",
			Help: "Operations refused for an unknown, inactive, or non-owning token",
		},
		[]string{"operation"},
	)

	IDAllocationAttempts = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "case_recorder_id_allocation_attempts",
			Help:    "Candidates generated per identifier allocation",
			Buckets: []float64{1, 2, 3, 5, 10, 50, 100, 1000},
		},
		[]string{"resource"},
	)
}

// RecordCacheHit increments the hit or miss counter when metrics are enabled.
func RecordCacheHit(hit bool) {
	if hit {
		if CacheHitsTotal != nil {
			CacheHitsTotal.Inc()
		}
		return
	}
	if CacheMissesTotal != nil {
		CacheMissesTotal.Inc()
	}
}

// RecordDenied counts a refused operation when metrics are enabled.
func RecordDenied(op string) {
	if AuthorizationDenied != nil {
		AuthorizationDenied.WithLabelValues(op).Inc()
	}
}

// RecordAllocation observes the attempt count of one allocation.
func RecordAllocation(resource string, attempts int) {
	if IDAllocationAttempts != nil {
		IDAllocationAttempts.WithLabelValues(resource).Observe(float64(attempts))
	}
}
