// Package metrics exposes Prometheus counters for wiki document handling.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Results for TiddlerWrites.
const (
	ResultWritten          = "written"
	ResultSkippedEncrypted = "skipped_encrypted"
)

// Metrics holds the collectors registered on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsParsed prometheus.Counter
	TiddlerWrites   *prometheus.CounterVec
	DuplicateFaults prometheus.Counter
	InvalidUploads  prometheus.Counter
	SitesSaved      prometheus.Counter
}

// New creates the collectors and registers them, with the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocumentsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twhost",
			Name:      "documents_parsed_total",
			Help:      "Wiki documents parsed.",
		}),
		TiddlerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twhost",
			Name:      "tiddler_writes_total",
			Help:      "Tiddler writes by result.",
		}, []string{"result"}),
		DuplicateFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twhost",
			Name:      "duplicate_tiddler_faults_total",
			Help:      "Operations that hit a store with a duplicated tiddler title.",
		}),
		InvalidUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twhost",
			Name:      "invalid_uploads_total",
			Help:      "Uploaded or saved files rejected as not a TiddlyWiki.",
		}),
		SitesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twhost",
			Name:      "sites_saved_total",
			Help:      "Whole-file site saves and uploads accepted.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DocumentsParsed,
		m.TiddlerWrites,
		m.DuplicateFaults,
		m.InvalidUploads,
		m.SitesSaved,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Parsed counts one parsed document.
func (m *Metrics) Parsed() {
	if m != nil {
		m.DocumentsParsed.Inc()
	}
}

// Wrote counts n tiddler writes with result.
func (m *Metrics) Wrote(result string, n int) {
	if m != nil && n > 0 {
		m.TiddlerWrites.WithLabelValues(result).Add(float64(n))
	}
}

// Duplicate counts one duplicate-title fault.
func (m *Metrics) Duplicate() {
	if m != nil {
		m.DuplicateFaults.Inc()
	}
}

// Invalid counts one rejected upload.
func (m *Metrics) Invalid() {
	if m != nil {
		m.InvalidUploads.Inc()
	}
}

// Saved counts one accepted whole-file save.
func (m *Metrics) Saved() {
	if m != nil {
		m.SitesSaved.Inc()
	}
}
