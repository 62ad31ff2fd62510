package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private Prometheus registry for the service. All methods are safe on
// a nil receiver, which disables collection.
type Collector struct {
	registry *prometheus.Registry

	ledgerOps       *prometheus.CounterVec
	ledgerDuration  *prometheus.HistogramVec
	storeRetries    *prometheus.CounterVec
	riskPredictions *prometheus.CounterVec
	fraudScores     prometheus.Histogram
	flagsCreated    prometheus.Counter
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	jobRuns         *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		ledgerOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by operation and result",
		}, []string{"op", "result"}),
		ledgerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken by a ledger unit of work, retries included",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		storeRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_store_retries_total",
			Help: "Units of work retried after a transient store conflict",
		}, []string{"op"}),
		riskPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_predictions_total",
			Help: "Model predictions by model kind and result",
		}, []string{"kind", "result"}),
		fraudScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_fraud_score",
			Help:    "Distribution of fraud scores",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
		flagsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_flags_created_total",
			Help: "Flagged transactions added to the review queue",
		}),
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Payment gateway calls by operation and result",
		}, []string{"op", "result"}),
		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job runs by job and result",
		}, []string{"job", "result"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Broker events by routing key and result",
		}, []string{"routing_key", "result"}),
		reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_reconciliations_required_total",
			Help: "Gateway settlements that need manual reconciliation",
		}, []string{"kind"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveLedgerOp records the outcome and duration of a ledger operation.
func (c *Collector) ObserveLedgerOp(op string, started time.Time, err error) {
	if c == nil {
		return
	}
	c.ledgerOps.WithLabelValues(op, result(err)).Inc()
	c.ledgerDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (c *Collector) StoreRetry(op string) {
	if c == nil {
		return
	}
	c.storeRetries.WithLabelValues(op).Inc()
}

// ObservePrediction records a model call. outcome is "ok", "error" or "unavailable".
func (c *Collector) ObservePrediction(kind, outcome string) {
	if c == nil {
		return
	}
	c.riskPredictions.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) ObserveFraudScore(score float64) {
	if c == nil {
		return
	}
	c.fraudScores.Observe(score)
}

func (c *Collector) FlagCreated() {
	if c == nil {
		return
	}
	c.flagsCreated.Inc()
}

func (c *Collector) ObserveGateway(op string, started time.Time, err error) {
	if c == nil {
		return
	}
	c.gatewayRequests.WithLabelValues(op, result(err)).Inc()
	c.gatewayDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (c *Collector) ObserveJob(job string, err error) {
	if c == nil {
		return
	}
	c.jobRuns.WithLabelValues(job, result(err)).Inc()
}

func (c *Collector) ObserveEvent(routingKey string, err error) {
	if c == nil {
		return
	}
	c.eventsPublished.WithLabelValues(routingKey, result(err)).Inc()
}

func (c *Collector) ReconciliationRequired(kind string) {
	if c == nil {
		return
	}
	c.reconciliations.WithLabelValues(kind).Inc()
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
