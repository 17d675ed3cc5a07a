package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cart operation outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Cart read-cache results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// CartMetrics records cart mutation and read-cache activity.
type CartMetrics struct {
	duration       *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	stockConflicts *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_operation_duration_seconds",
		Help:    "Duration of cart operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart operations by outcome.",
	}, []string{"operation", "outcome"})
	stockConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_insufficient_stock_total",
		Help: "Cart mutations rejected for insufficient stock.",
	}, []string{"operation"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_cache_lookups_total",
		Help: "Cart read-cache lookups by result.",
	}, []string{"result"})
	reg.MustRegister(duration, operations, stockConflicts, cacheLookups)
	return &CartMetrics{
		duration:       duration,
		operations:     operations,
		stockConflicts: stockConflicts,
		cacheLookups:   cacheLookups,
	}
}

// Observe records one finished operation.
func (c *CartMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	c.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	c.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
}

// IncStockConflict counts a mutation rejected for insufficient stock.
func (c *CartMetrics) IncStockConflict(operation string) {
	if c == nil || c.stockConflicts == nil {
		return
	}
	c.stockConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncCache counts a cart read-cache lookup.
func (c *CartMetrics) IncCache(result string) {
	if c == nil || c.cacheLookups == nil {
		return
	}
	c.cacheLookups.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
