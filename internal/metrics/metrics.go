// Package metrics exposes the router's request counters and latency
// histograms for scraping, grounded on the pack's own dedicated metrics
// package pattern (a package-level prometheus.Registry plus a handler,
// as cubefs-inodedb/metrics/metric.go sets up for its gRPC server).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xapiand",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xapiand",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(RequestsTotal, RequestDuration)
}

// Handler serves the registry's current state in the Prometheus text
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
