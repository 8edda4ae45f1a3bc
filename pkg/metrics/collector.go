// Package metrics exposes prometheus counters and histograms for executions,
// steps, scheduled runs, orchestrator subtasks and bus events.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "conductor"

// Collector owns its registry so several collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	stepsTotal        *prometheus.CounterVec
	stepRetries       *prometheus.CounterVec
	scheduledRuns     *prometheus.CounterVec
	subtasksTotal     *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Workflow executions by final status",
		}, []string{"status"}),
		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution wall time",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"status"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Workflow steps by type and final status",
		}, []string{"type", "status"}),
		stepRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_step_retries_total",
			Help:      "Step retries by step type",
		}, []string{"type"}),
		scheduledRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_runs_total",
			Help:      "Scheduled runs by trigger type and outcome",
		}, []string{"trigger_type", "status"}),
		subtasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestrator_subtasks_total",
			Help:      "Orchestrator subtasks by agent role and outcome",
		}, []string{"role", "status"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events consumed from the event bus by type",
		}, []string{"type"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (c *Collector) RecordExecution(status string, duration time.Duration) {
	c.executionsTotal.WithLabelValues(status).Inc()
	c.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (c *Collector) RecordStep(stepType, status string) {
	c.stepsTotal.WithLabelValues(stepType, status).Inc()
}

func (c *Collector) RecordRetry(stepType string) {
	c.stepRetries.WithLabelValues(stepType).Inc()
}

func (c *Collector) RecordScheduledRun(triggerType string, success bool) {
	c.scheduledRuns.WithLabelValues(triggerType, outcome(success)).Inc()
}

func (c *Collector) RecordSubtask(role string, success bool) {
	c.subtasksTotal.WithLabelValues(role, outcome(success)).Inc()
}

func (c *Collector) RecordEvent(eventType string) {
	c.eventsTotal.WithLabelValues(eventType).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func outcome(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
