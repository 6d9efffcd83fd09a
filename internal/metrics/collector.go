package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// Collector records assessment activity on its own Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	assessmentsStarted *prometheus.CounterVec
	strategyToggles    *prometheus.CounterVec
	historySaved       prometheus.Counter
	importFallbacks    prometheus.Counter
	activeSessions     prometheus.GaugeFunc
	estimatedCo2       *prometheus.HistogramVec

	mu           sync.RWMutex
	liveSessions func() int
}

func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.initPrometheusMetrics()
	return c
}

func (c *Collector) initPrometheusMetrics() {
	c.assessmentsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoscan_assessments_started_total",
			Help: "Assessments started, by configuration source",
		},
		[]string{"source"},
	)

	c.strategyToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoscan_strategy_toggles_total",
			Help: "Strategy toggles, by strategy and resulting action",
		},
		[]string{"strategy", "action"},
	)

	c.historySaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ecoscan_history_records_saved_total",
		Help: "Assessments saved to the history library",
	})

	c.importFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ecoscan_import_fallbacks_total",
		Help: "Imports that fell back to the high-carbon baseline",
	})

	// Evaluated at scrape time.
	c.activeSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ecoscan_active_sessions",
		Help: "Assessment sessions currently held in memory",
	}, func() float64 {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.liveSessions == nil {
			return 0
		}
		return float64(c.liveSessions())
	})

	// Buckets follow the grade thresholds.
	c.estimatedCo2 = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecoscan_estimated_lifecycle_co2_kg",
			Help:    "Lifecycle kg CO2 of estimated configurations, by grade",
			Buckets: []float64{500, 2000, 5000, 10000, 50000},
		},
		[]string{"grade"},
	)

	c.registry.MustRegister(
		c.assessmentsStarted,
		c.strategyToggles,
		c.historySaved,
		c.importFallbacks,
		c.activeSessions,
		c.estimatedCo2,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func (c *Collector) AssessmentStarted(source string) {
	c.assessmentsStarted.WithLabelValues(source).Inc()
}

func (c *Collector) StrategyToggled(strategyID, action string) {
	c.strategyToggles.WithLabelValues(strategyID, action).Inc()
}

func (c *Collector) HistorySaved() { c.historySaved.Inc() }

func (c *Collector) ImportFallback() { c.importFallbacks.Inc() }

// TrackSessions makes the active sessions gauge report count().
func (c *Collector) TrackSessions(count func() int) {
	c.mu.Lock()
	c.liveSessions = count
	c.mu.Unlock()
}

// ObserveEstimate records the lifecycle total of an estimate.
func (c *Collector) ObserveEstimate(m models.LifecycleMetrics) {
	c.estimatedCo2.WithLabelValues(string(m.Grade)).Observe(m.TotalCo2Kg)
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
