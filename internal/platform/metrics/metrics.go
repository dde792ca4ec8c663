// Package metrics builds the process-wide Prometheus registry and its HTTP
// handler. Module metrics register themselves on the registry returned here.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process-level metrics shared by the intake servers.
type Metrics struct {
	Registry     *prometheus.Registry
	HTTPRequests *prometheus.CounterVec
	BuildInfo    *prometheus.GaugeVec
}

// New creates a registry with the Go and process collectors and registers
// the process-level metrics on it.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	m := &Metrics{
		Registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_http_requests_total",
			Help: "HTTP requests by route group and status class",
		}, []string{"group", "status"}),
		BuildInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intake_build_info",
			Help: "Build information; the value is always 1",
		}, []string{"version"}),
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// IncHTTPRequest counts a finished request. status is the numeric code; it
// is reduced to its class (2xx, 4xx, ...).
func (m *Metrics) IncHTTPRequest(group string, status int) {
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	m.HTTPRequests.WithLabelValues(group, class).Inc()
}
