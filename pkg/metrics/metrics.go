// Package metrics exposes Prometheus metrics for the queue, executions and actions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mail_automation"

// Collector owns its own registry so several collectors can coexist in tests.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	enqueued          *prometheus.CounterVec
	queueItems        *prometheus.CounterVec
	queueItemDuration prometheus.Histogram
	executions        *prometheus.CounterVec
	executionDuration prometheus.Histogram
	actions           *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enqueued_total",
			Help:      "Events accepted into the automation queue",
		}, []string{"priority"}),
		queueItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_items_processed_total",
			Help:      "Queue items processed by outcome",
		}, []string{"status"}),
		queueItemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_item_duration_seconds",
			Help:      "Time spent processing one queue item",
			Buckets:   prometheus.DefBuckets,
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Workflow executions by final status",
		}, []string{"status"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Duration of workflow executions",
			Buckets:   prometheus.DefBuckets,
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Action invocations by type and final status",
		}, []string{"action_type", "status"}),
	}

	reg.MustRegister(
		c.enqueued,
		c.queueItems,
		c.queueItemDuration,
		c.executions,
		c.executionDuration,
		c.actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveEnqueue(priority string) {
	if c == nil {
		return
	}

	c.enqueued.WithLabelValues(priority).Inc()
}

func (c *Collector) ObserveQueueItem(status string, duration time.Duration) {
	if c == nil {
		return
	}

	c.queueItems.WithLabelValues(status).Inc()
	c.queueItemDuration.Observe(duration.Seconds())
}

func (c *Collector) ObserveExecution(status string, duration time.Duration) {
	if c == nil {
		return
	}

	c.executions.WithLabelValues(status).Inc()
	c.executionDuration.Observe(duration.Seconds())
}

func (c *Collector) ObserveAction(actionType, status string) {
	if c == nil {
		return
	}

	c.actions.WithLabelValues(actionType, status).Inc()
}
