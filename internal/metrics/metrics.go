package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Collector counts tracker requests and cache outcomes on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	Registry *prometheus.Registry
	requests *prometheus.CounterVec
	cache    *prometheus.CounterVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jiralink",
			Name:      "requests_total",
			Help:      "Tracker HTTP requests by endpoint and status code (0 = no response).",
		}, []string{"endpoint", "status"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jiralink",
			Name:      "cache_requests_total",
			Help:      "Result cache lookups by cache and outcome.",
		}, []string{"cache", "result"}),
	}
	c.Registry.MustRegister(c.requests, c.cache)
	return c
}

// ObserveRequest records one HTTP round trip.
func (c *Collector) ObserveRequest(endpoint string, status int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObserveCache records one cache lookup outcome.
func (c *Collector) ObserveCache(name, result string) {
	if c == nil {
		return
	}
	c.cache.WithLabelValues(name, result).Inc()
}

// TotalRequests sums all recorded tracker requests.
func (c *Collector) TotalRequests() float64 {
	if c == nil {
		return 0
	}
	families, err := c.Registry.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != "jiralink_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
