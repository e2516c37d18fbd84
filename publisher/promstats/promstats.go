// Package promstats implements a publisher that aggregates the usage
// events into Prometheus histograms and counters.
package promstats

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Name = "prometheus"

	promNamespace = "apimgt"
	promSubsystem = "usage"
)

// DefaultResponseSizeBuckets are exponential buckets from 1KiB to 64MiB.
var DefaultResponseSizeBuckets = prometheus.ExponentialBuckets(1024, 4, 9)

type Options struct {
	// Registry the collectors are registered with. A new registry is
	// created when nil.
	Registry *prometheus.Registry

	// Namespace of the metric names, defaults to "apimgt".
	Namespace string

	// HistogramBuckets of the time histograms in seconds, defaults to
	// prometheus.DefBuckets.
	HistogramBuckets []float64

	// ResponseSizeBuckets defaults to DefaultResponseSizeBuckets.
	ResponseSizeBuckets []float64
}

type Publisher struct {
	registry *prometheus.Registry

	responseTimeM *prometheus.HistogramVec
	serviceTimeM  *prometheus.HistogramVec
	backendTimeM  *prometheus.HistogramVec
	responseSizeM *prometheus.HistogramVec
	requestsM     *prometheus.CounterVec

	collectors []prometheus.Collector
}

var labels = []string{"api", "version", "method", "tenant"}

func New(o Options) *Publisher {
	if o.Registry == nil {
		o.Registry = prometheus.NewRegistry()
	}

	if o.Namespace == "" {
		o.Namespace = promNamespace
	}

	if len(o.HistogramBuckets) == 0 {
		o.HistogramBuckets = prometheus.DefBuckets
	}

	if len(o.ResponseSizeBuckets) == 0 {
		o.ResponseSizeBuckets = DefaultResponseSizeBuckets
	}

	timeHistogram := func(name, help string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.Namespace,
			Subsystem: promSubsystem,
			Name:      name,
			Help:      help,
			Buckets:   o.HistogramBuckets,
		}, labels)
	}

	p := &Publisher{
		registry:      o.Registry,
		responseTimeM: timeHistogram("response_duration_seconds", "Duration in seconds between receiving the request and sending the response."),
		serviceTimeM:  timeHistogram("service_duration_seconds", "Duration in seconds of the gateway processing of a request."),
		backendTimeM:  timeHistogram("backend_duration_seconds", "Duration in seconds of the backend round trip."),
		responseSizeM: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.Namespace,
			Subsystem: promSubsystem,
			Name:      "response_size_bytes",
			Help:      "Size of the response body in bytes.",
			Buckets:   o.ResponseSizeBuckets,
		}, labels),
		requestsM: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Subsystem: promSubsystem,
			Name:      "requests_total",
			Help:      "Total of the published API invocations, by inferred cache hit.",
		}, append(append([]string(nil), labels...), "cache_hit")),
	}

	p.collectors = []prometheus.Collector{
		p.responseTimeM,
		p.serviceTimeM,
		p.backendTimeM,
		p.responseSizeM,
		p.requestsM,
	}

	return p
}

// Init registers the collectors. It fails when the registry already
// contains collectors with the same names.
func (p *Publisher) Init() error {
	var errs []error
	for _, c := range p.collectors {
		if err := p.registry.Register(c); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to register usage metrics: %w", err)
	}

	return nil
}

func (p *Publisher) Publish(e *publisher.Event) error {
	lv := []string{e.API, e.Version, e.Method, e.TenantDomain}

	p.responseTimeM.WithLabelValues(lv...).Observe(e.ResponseTime.Seconds())
	p.serviceTimeM.WithLabelValues(lv...).Observe(e.ServiceTime.Seconds())
	if !e.CacheHit {
		p.backendTimeM.WithLabelValues(lv...).Observe(e.BackendTime.Seconds())
	}

	p.responseSizeM.WithLabelValues(lv...).Observe(float64(e.ResponseSize))
	p.requestsM.WithLabelValues(append(lv, strconv.FormatBool(e.CacheHit))...).Inc()
	return nil
}

// Close unregisters the collectors.
func (p *Publisher) Close() error {
	for _, c := range p.collectors {
		p.registry.Unregister(c)
	}

	return nil
}

// Handler serves the registry of the publisher in the Prometheus text
// format.
func (p *Publisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
