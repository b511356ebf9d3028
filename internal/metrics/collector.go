// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the module's operational metrics.
type Collector struct {
	// Routing metrics
	routingRequestsTotal *prometheus.CounterVec
	routingDuration      *prometheus.HistogramVec
	agentsSpawnedTotal   *prometheus.CounterVec

	// Agent lifecycle metrics
	agentsRegisteredTotal     *prometheus.CounterVec
	agentsDecommissionedTotal prometheus.Counter
	agentsActive              prometheus.Gauge

	// Session metrics
	sessionsCreatedTotal   prometheus.Counter
	sessionsCompletedTotal prometheus.Counter
	sessionsAbandonedTotal prometheus.Counter
	handoffsTotal          *prometheus.CounterVec
	sessionsActive         prometheus.Gauge

	// Geo catalog metrics
	geoQueriesTotal     *prometheus.CounterVec
	geoQueryDuration    *prometheus.HistogramVec
	servicesPostedTotal *prometheus.CounterVec
	servicesActive      prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates a collector registered against the default
// Prometheus registry under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.routingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_requests_total",
			Help:      "Total number of routing requests",
		},
		[]string{"service", "strategy", "outcome"}, // outcome: assigned, spawned, rejected
	)

	c.routingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_duration_seconds",
			Help:      "Routing request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	c.agentsSpawnedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_spawned_total",
			Help:      "Total number of agents spawned on demand",
		},
		[]string{"purpose"},
	)

	c.agentsRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_registered_total",
			Help:      "Total number of agent registrations",
		},
		[]string{"purpose"},
	)

	c.agentsDecommissionedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_decommissioned_total",
			Help:      "Total number of decommissioned agents",
		},
	)

	c.agentsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_active",
			Help:      "Number of currently registered agents",
		},
	)

	c.sessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		},
	)

	c.sessionsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions completed",
		},
	)

	c.sessionsAbandonedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_abandoned_total",
			Help:      "Total number of sessions abandoned",
		},
	)

	c.handoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_handoffs_total",
			Help:      "Total number of session handoffs",
		},
		[]string{"reason"},
	)

	c.sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		},
	)

	c.geoQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_queries_total",
			Help:      "Total number of geospatial queries",
		},
		[]string{"kind"}, // kind: nearest, nearby
	)

	c.geoQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geo_query_duration_seconds",
			Help:      "Geospatial query duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"kind"},
	)

	c.servicesPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "services_posted_total",
			Help:      "Total number of service listings posted",
		},
		[]string{"category"},
	)

	c.servicesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "services_active",
			Help:      "Number of currently active service listings",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordRouting records a routing request and its outcome.
func (c *Collector) RecordRouting(service, strategy, outcome string, duration time.Duration) {
	c.routingRequestsTotal.WithLabelValues(service, strategy, outcome).Inc()
	c.routingDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordSpawn records an on-demand agent spawn.
func (c *Collector) RecordSpawn(purpose string) {
	c.agentsSpawnedTotal.WithLabelValues(purpose).Inc()
}

// RecordRegistration records an agent registration.
func (c *Collector) RecordRegistration(purpose string) {
	c.agentsRegisteredTotal.WithLabelValues(purpose).Inc()
}

// RecordDecommission records an agent decommission.
func (c *Collector) RecordDecommission() {
	c.agentsDecommissionedTotal.Inc()
}

// SetActiveAgents updates the registered-agent gauge.
func (c *Collector) SetActiveAgents(n int) {
	c.agentsActive.Set(float64(n))
}

// RecordSessionCreated records a session creation.
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreatedTotal.Inc()
}

// RecordSessionCompleted records a session completion.
func (c *Collector) RecordSessionCompleted() {
	c.sessionsCompletedTotal.Inc()
}

// RecordSessionAbandoned records a session abandonment.
func (c *Collector) RecordSessionAbandoned() {
	c.sessionsAbandonedTotal.Inc()
}

// RecordHandoff records a session handoff.
func (c *Collector) RecordHandoff(reason string) {
	c.handoffsTotal.WithLabelValues(reason).Inc()
}

// SetActiveSessions updates the active-session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

// RecordGeoQuery records a geospatial query.
func (c *Collector) RecordGeoQuery(kind string, duration time.Duration) {
	c.geoQueriesTotal.WithLabelValues(kind).Inc()
	c.geoQueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordServicePosted records a new service listing.
func (c *Collector) RecordServicePosted(category string) {
	c.servicesPostedTotal.WithLabelValues(category).Inc()
}

// SetActiveServices updates the active-listing gauge.
func (c *Collector) SetActiveServices(n int) {
	c.servicesActive.Set(float64(n))
}
