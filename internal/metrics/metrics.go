// Package metrics exposes Prometheus instrumentation for rendering, the
// template registry and the preview server.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/registry"
)

const namespace = "tagfill"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors of one Prometheus registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	rendersTotal   *prometheus.CounterVec
	renderDuration prometheus.Histogram
	templates      prometheus.Gauge
	requestsTotal  *prometheus.CounterVec
}

// New registers the tagfill collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		rendersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Template renders by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a template.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		templates: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_templates",
			Help:      "Number of templates in the registry.",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the preview server.",
		}, []string{"route", "code"}),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics registered on a process-wide registry that also
// carries the Go runtime and process collectors.
func Default() *Metrics {
	defaultOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		defaultMetrics = New(reg)
	})
	return defaultMetrics
}

// ObserveRender runs render, records its duration and counts the outcome.
// Failed renders are labelled with the kind of their error.
func (m *Metrics) ObserveRender(render func() error) error {
	start := time.Now()
	err := render()
	m.renderDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		m.rendersTotal.WithLabelValues(OutcomeError, ErrorKind(err)).Inc()
		return err
	}
	m.rendersTotal.WithLabelValues(OutcomeSuccess, "").Inc()
	return nil
}

// ErrorKind is the label value used for err.
func ErrorKind(err error) string {
	if kind := errors.TypeOf(err); kind != "" {
		return string(kind)
	}
	return "other"
}

// SetTemplates sets the registered templates gauge.
func (m *Metrics) SetTemplates(n int) {
	m.templates.Set(float64(n))
}

// TrackRegistry keeps the templates gauge in sync with reg until ctx is
// done.
func (m *Metrics) TrackRegistry(ctx context.Context, reg *registry.TemplateRegistry) {
	events := reg.Watch()
	defer reg.UnWatch(events)

	m.SetTemplates(reg.Count())
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			m.SetTemplates(reg.Count())
		}
	}
}

// Instrument counts the requests next serves under route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
