// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the server records.
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	renders        *prometheus.CounterVec
	renderLatency  prometheus.Histogram
	cacheHits      *prometheus.CounterVec
	indexRebuilds  prometheus.Counter
	indexLatency   prometheus.Histogram
	exports        *prometheus.CounterVec
	exportPages    prometheus.Gauge
	logins         *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	jobLatency     *prometheus.HistogramVec
}

// NewCollector registers all metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_renders_total",
			Help: "Rendered public responses by file type and status.",
		}, []string{"file_type", "status"}),
		renderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_render_duration_seconds",
			Help:    "Template render latency.",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_render_cache_total",
			Help: "Render cache lookups by result.",
		}, []string{"result"}),
		indexRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "folio_index_rebuilds_total",
			Help: "Content index rebuilds.",
		}),
		indexLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_index_rebuild_duration_seconds",
			Help:    "Content index rebuild latency.",
			Buckets: prometheus.DefBuckets,
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_static_exports_total",
			Help: "Static exports by outcome.",
		}, []string{"outcome"}),
		exportPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "folio_static_export_pages",
			Help: "Pages written by the last static export.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_media_uploads_total",
			Help: "Media uploads by kind.",
		}, []string{"kind"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_maintenance_jobs_total",
			Help: "Maintenance job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_maintenance_job_duration_seconds",
			Help:    "Maintenance job run time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.requests, c.requestLatency,
		c.renders, c.renderLatency, c.cacheHits,
		c.indexRebuilds, c.indexLatency,
		c.exports, c.exportPages,
		c.logins, c.uploads,
		c.jobs, c.jobLatency,
	)
	return c
}

func (c *Collector) RecordRequest(method, route string, status int, d time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordRender(fileType string, status int, d time.Duration) {
	c.renders.WithLabelValues(fileType, strconv.Itoa(status)).Inc()
	c.renderLatency.Observe(d.Seconds())
}

func (c *Collector) RecordCache(hit bool) {
	if hit {
		c.cacheHits.WithLabelValues("hit").Inc()
		return
	}
	c.cacheHits.WithLabelValues("miss").Inc()
}

func (c *Collector) RecordIndexRebuild(d time.Duration) {
	c.indexRebuilds.Inc()
	c.indexLatency.Observe(d.Seconds())
}

func (c *Collector) RecordExport(ok bool, pages int) {
	if !ok {
		c.exports.WithLabelValues("failed").Inc()
		return
	}
	c.exports.WithLabelValues("ready").Inc()
	c.exportPages.Set(float64(pages))
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordUpload(kind string) {
	c.uploads.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordJob(job string, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.jobs.WithLabelValues(job, outcome).Inc()
	c.jobLatency.WithLabelValues(job).Observe(took.Seconds())
}

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
