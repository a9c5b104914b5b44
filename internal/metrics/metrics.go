package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Logins        *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	ReuseDetected prometheus.Counter
	RateLimited   prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Refresh token redemptions by result.",
		}, []string{"result"}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_token_reuse_detected_total",
			Help: "Refresh token reuse incidents.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_rate_limited_requests_total",
			Help: "Requests rejected by the fixed-window rate limiter.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		m.Logins,
		m.Refreshes,
		m.ReuseDetected,
		m.RateLimited,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
