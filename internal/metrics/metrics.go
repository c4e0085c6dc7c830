// Package metrics exposes Prometheus metrics for stack actions and the status cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stackplane"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Metrics holds the collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	ActionBusy     *prometheus.CounterVec
	CacheRefresh   *prometheus.CounterVec
}

// New creates the collectors and registers them with a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of executed stack actions",
		}, []string{"action", "result"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of stack actions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		ActionBusy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_busy_total",
			Help:      "Total number of stack actions rejected because the stack was busy",
		}, []string{"action"}),
		CacheRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refresh_total",
			Help:      "Total number of per-server status cache refreshes",
		}, []string{"result"}),
	}
	reg.MustRegister(m.ActionsTotal, m.ActionDuration, m.ActionBusy, m.CacheRefresh)
	reg.MustRegister(prometheus.NewGoCollector())
	return m
}

// ObserveAction records a finished action.
func (m *Metrics) ObserveAction(action, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, result).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveBusy records an action rejected with Busy.
func (m *Metrics) ObserveBusy(action string) {
	if m == nil {
		return
	}
	m.ActionBusy.WithLabelValues(action).Inc()
}

// ObserveRefresh records one server refresh.
func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.CacheRefresh.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
