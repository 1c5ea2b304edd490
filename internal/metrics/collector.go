// Package metrics exposes conversation loop measurements to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns a private registry with the conversation metrics.
type Collector struct {
	registry *prometheus.Registry

	turnsTotal        *prometheus.CounterVec
	sendsTotal        *prometheus.CounterVec
	sendDuration      *prometheus.HistogramVec
	fallbacksTotal    *prometheus.CounterVec
	rosterSize        prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector whose metrics are prefixed by namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		turnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns by stage",
		}, []string{"stage"}),
		sendsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_sends_total",
			Help:      "Messages sent to partners by result status",
		}, []string{"partner", "status"}),
		sendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transport_send_duration_seconds",
			Help:      "Time to deliver a message and receive the reply",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"partner"}),
		fallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Messages replaced by the persona fallback after a generation fault",
		}, []string{"partner"}),
		rosterSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roster_size",
			Help:      "Known conversation partners",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// ObserveSend implements conversation.Stats.
func (c *Collector) ObserveSend(partner, status string, elapsed time.Duration) {
	if status == "" {
		status = "unknown"
	}
	c.sendsTotal.WithLabelValues(partner, status).Inc()
	c.sendDuration.WithLabelValues(partner).Observe(elapsed.Seconds())
}

// SetRosterSize implements conversation.Stats.
func (c *Collector) SetRosterSize(n int) {
	c.rosterSize.Set(float64(n))
}

// ObserveTurn counts a turn. It implements conversation.TurnObserver.
func (c *Collector) ObserveTurn(_ context.Context, turn *conversation.Turn) error {
	c.turnsTotal.WithLabelValues(turn.Position.Stage.String()).Inc()
	return nil
}

// RecordFallback counts a generation fallback for partner.
func (c *Collector) RecordFallback(partner string) {
	c.fallbacksTotal.WithLabelValues(partner).Inc()
}

// Middleware records request counts and latency by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
