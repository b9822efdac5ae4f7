// Package echoprom provides Echo middleware for Prometheus metrics and the
// registry the daemon's collectors live in.
package echoprom

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the HTTP collectors of one registry.
type Metrics struct {
	Registry *prometheus.Registry

	// RequestDuration measures request latency
	RequestDuration *prometheus.HistogramVec

	// RequestsTotal counts total requests by method, route and status code
	RequestsTotal *prometheus.CounterVec
}

// New creates a registry with the Go runtime and process collectors and
// the HTTP request collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers only the HTTP collectors with reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by status code",
			},
			[]string{"method", "path", "code"},
		),
	}
}

// Config holds configuration for the middleware
type Config struct {
	// Skipper defines a function to skip middleware
	Skipper func(c echo.Context) bool
}

// DefaultConfig provides default configuration
func DefaultConfig() Config {
	return Config{
		Skipper: func(c echo.Context) bool { return false },
	}
}

// Middleware returns Echo middleware which records Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return m.MiddlewareWithConfig(DefaultConfig())
}

// MiddlewareWithConfig returns Echo middleware with config
func (m *Metrics) MiddlewareWithConfig(config Config) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = DefaultConfig().Skipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the status we record
				c.Error(err)
			}

			// route pattern, not the raw URL, to bound cardinality
			path := c.Path()
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			m.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(method, path, status).Inc()
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
