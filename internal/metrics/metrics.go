// Package metrics exposes connector activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/authconnector/internal/models"
)

// Recorder is what the syncer and the webhook server report to.
type Recorder interface {
	ObserveBatch(d time.Duration, err error)
	AddRemote(s models.Stats)
	RecordApplied(a models.Action)
	RecordFailure(a models.Action)
	RecordWebhook(key string, status int)
}

// NoopRecorder drops everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBatch(time.Duration, error) {}
func (NoopRecorder) AddRemote(models.Stats)            {}
func (NoopRecorder) RecordApplied(models.Action)       {}
func (NoopRecorder) RecordFailure(models.Action)       {}
func (NoopRecorder) RecordWebhook(string, int)         {}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	batches      *prometheus.CounterVec
	batchLatency prometheus.Histogram
	remote       *prometheus.CounterVec
	applied      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector builds a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_sync_batches_total",
			Help: "Sync requests sent to the remote service.",
		}, []string{"result"}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "connector_sync_batch_latency_seconds",
			Help:    "Latency of a single sync request.",
			Buckets: prometheus.DefBuckets,
		}),
		remote: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_remote_changes_total",
			Help: "Changes the remote service reported, by outcome.",
		}, []string{"outcome"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_local_changes_total",
			Help: "Remote changes applied to the local store, by action.",
		}, []string{"action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_record_failures_total",
			Help: "Records whose handler failed, by action.",
		}, []string{"action"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_webhook_requests_total",
			Help: "Webhook calls by key and status code.",
		}, []string{"key", "status_code"}),
	}

	reg.MustRegister(c.batches, c.batchLatency, c.remote, c.applied, c.failures, c.webhooks)
	return c
}

func (c *Collector) ObserveBatch(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.batches.WithLabelValues(result).Inc()
	c.batchLatency.Observe(d.Seconds())
}

func (c *Collector) AddRemote(s models.Stats) {
	c.remote.WithLabelValues("created").Add(float64(max(s.Created, 0)))
	c.remote.WithLabelValues("updated").Add(float64(max(s.Updated, 0)))
	c.remote.WithLabelValues("deleted").Add(float64(max(s.Deleted, 0)))
}

func (c *Collector) RecordApplied(a models.Action) {
	c.applied.WithLabelValues(string(a)).Inc()
}

func (c *Collector) RecordFailure(a models.Action) {
	c.failures.WithLabelValues(string(a)).Inc()
}

func (c *Collector) RecordWebhook(key string, status int) {
	c.webhooks.WithLabelValues(key, strconv.Itoa(status)).Inc()
}

// Handler serves the gathered metrics for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
