// ABOUTME: Prometheus collectors for gateway exchanges and HTTP routes
// ABOUTME: Owns a private registry exposed through Handler

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/parley-gateway/internal/engine"
)

const namespace = "parley"

// Collector holds every gateway metric.
type Collector struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	fragments *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
	tokens    *prometheus.CounterVec
	cost      *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New creates a Collector registered on its own registry, along with the
// standard Go and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Gateway exchanges by profile and outcome",
			},
			[]string{"profile", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_latency_seconds",
				Help:      "Time from engine invocation to the end of its stream",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"profile"},
		),
		fragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragments_total",
				Help:      "Content fragments received from the engine",
			},
			[]string{"profile"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "exchanges_in_flight",
				Help:      "Exchanges currently waiting on the engine",
			},
			[]string{"profile"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_tokens_total",
				Help:      "Tokens reported by the engine",
			},
			[]string{"profile", "kind"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_cost_usd_total",
				Help:      "Cost reported by the engine in USD",
			},
			[]string{"profile"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "code"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests,
		c.latency,
		c.fragments,
		c.inFlight,
		c.tokens,
		c.cost,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

// Begin marks one exchange in flight for profile.
func (c *Collector) Begin(profile string) func() {
	g := c.inFlight.WithLabelValues(profile)
	g.Inc()
	return g.Dec
}

// Exchange records the outcome of one exchange.
func (c *Collector) Exchange(profile, outcome string, elapsed time.Duration, fragments int) {
	c.requests.WithLabelValues(profile, outcome).Inc()
	if elapsed > 0 {
		c.latency.WithLabelValues(profile).Observe(elapsed.Seconds())
	}
	if fragments > 0 {
		c.fragments.WithLabelValues(profile).Add(float64(fragments))
	}
}

// Usage records token counts and cost reported by the engine.
func (c *Collector) Usage(profile string, u *engine.Usage) {
	if u == nil {
		return
	}
	c.tokens.WithLabelValues(profile, "input").Add(float64(u.InputTokens))
	c.tokens.WithLabelValues(profile, "output").Add(float64(u.OutputTokens))
	c.tokens.WithLabelValues(profile, "cache_read").Add(float64(u.CacheReadTokens))
	c.tokens.WithLabelValues(profile, "cache_write").Add(float64(u.CacheWriteTokens))
	if u.CostUSD > 0 {
		c.cost.WithLabelValues(profile).Add(u.CostUSD)
	}
}

// Instrument wraps h with request counting and latency for route.
func (c *Collector) Instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		c.httpLatency.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(c.httpRequests.MustCurryWith(labels), h),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
