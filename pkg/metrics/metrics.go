// Package metrics provides Prometheus metrics for the posbridge connector.
// Metrics cover extraction volume, retry behavior, and token lifecycle so an
// operator can see how an invocation spent its budget.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts pages successfully fetched per entity
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posbridge_pages_fetched_total",
		Help: "Total number of pages fetched from the POS API",
	}, []string{"entity"})

	// RecordsExtracted counts raw records extracted per entity
	RecordsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posbridge_records_extracted_total",
		Help: "Total number of records extracted from the POS API",
	}, []string{"entity"})

	// RecordsEnhanced counts records enriched with derived fields
	RecordsEnhanced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posbridge_records_enhanced_total",
		Help: "Total number of records enhanced",
	}, []string{"entity"})

	// PageRetries counts page fetch retries per entity
	PageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posbridge_page_retries_total",
		Help: "Total number of page fetch retries",
	}, []string{"entity"})

	// TokenRefreshes counts re-authentications against the POS auth endpoint
	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posbridge_token_refreshes_total",
		Help: "Total number of token acquisitions and refreshes",
	})

	// EntitySyncDuration observes per-entity sync duration in seconds
	EntitySyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posbridge_entity_sync_duration_seconds",
		Help:    "Wall-clock duration of one entity's sync",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"entity", "status"})

	// EntityErrors counts per-entity failures by error type
	EntityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posbridge_entity_errors_total",
		Help: "Total number of per-entity sync failures",
	}, []string{"entity", "error_type"})
)

// Collector tracks per-invocation counters alongside the process-wide
// Prometheus metrics. Handlers create one per invocation; the totals end up
// in the invocation log line.
type Collector struct {
	name  string
	start time.Time

	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

// NewCollector creates a metrics collector for the named component
func NewCollector(name string) *Collector {
	return &Collector{
		name:   name,
		start:  time.Now(),
		counts: make(map[string]int64),
		gauges: make(map[string]float64),
	}
}

// Add increments a named counter by delta
func (c *Collector) Add(name string, delta int64) {
	c.mu.Lock()
	c.counts[name] += delta
	c.mu.Unlock()
}

// Set records a named gauge value
func (c *Collector) Set(name string, value float64) {
	c.mu.Lock()
	c.gauges[name] = value
	c.mu.Unlock()
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.start
}

// GetAll returns a snapshot of all recorded values
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]interface{}, len(c.counts)+len(c.gauges))
	for k, v := range c.counts {
		out[k] = v
	}
	for k, v := range c.gauges {
		out[k] = v
	}
	return out
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
