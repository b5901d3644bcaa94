// Package telemetry collects Prometheus metrics for the API client, the
// session and the router.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoicer"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	apiRequests   *prometheus.CounterVec
	apiDuration   *prometheus.HistogramVec
	apiRetries    *prometheus.CounterVec
	sessionEvents *prometheus.CounterVec
	navigations   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Requests sent to the billing API, by final status.",
			},
			[]string{"method", "route", "status"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Duration of billing API requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"method", "route"},
		),
		apiRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "refresh_retries_total",
				Help:      "Requests reissued after a token refresh.",
			},
			[]string{"route"},
		),
		sessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "events_total",
				Help:      "Session lifecycle events.",
			},
			[]string{"event"},
		),
		navigations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "navigations_total",
				Help:      "Completed navigations, by destination route.",
			},
			[]string{"route", "redirected"},
		),
	}

	m.Registry.MustRegister(
		m.apiRequests,
		m.apiDuration,
		m.apiRetries,
		m.sessionEvents,
		m.navigations,
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveRequest records one attempt. Status 0 is a transport failure.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	m.apiRequests.WithLabelValues(method, route, label).Inc()
	m.apiDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetry(route string) {
	m.apiRetries.WithLabelValues(route).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	m.sessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveNavigation(route string, redirected bool) {
	if route == "" {
		route = "unnamed"
	}
	m.navigations.WithLabelValues(route, strconv.FormatBool(redirected)).Inc()
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
