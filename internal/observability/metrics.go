package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives extraction events. Connector code depends on this
// interface only, so runs without a registry use NopMetrics.
type Metrics interface {
	PageFetched(app string, records int)
	RecordsEmitted(app string, n int)
	RequestFailed(app, kind string)
	ObserveSync(app string, d time.Duration)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) PageFetched(string, int)           {}
func (NopMetrics) RecordsEmitted(string, int)        {}
func (NopMetrics) RequestFailed(string, string)      {}
func (NopMetrics) ObserveSync(string, time.Duration) {}

// OrNop returns m, or NopMetrics when m is nil.
func OrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}

// PromMetrics records extraction events as Prometheus series.
type PromMetrics struct {
	pages    *prometheus.CounterVec
	records  *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPromMetrics creates the collectors and registers them with reg.
// A nil reg means prometheus.DefaultRegisterer.
func NewPromMetrics(reg prometheus.Registerer) (*PromMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	pages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintone_pages_fetched_total",
		Help: "Record listing pages fetched per app.",
	}, []string{"app"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintone_records_emitted_total",
		Help: "Flat records emitted per app.",
	}, []string{"app"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kintone_request_errors_total",
		Help: "Failed extraction calls per app and error kind.",
	}, []string{"app", "kind"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kintone_sync_duration_seconds",
		Help:    "Wall time of one app sync, schema discovery to last record.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"app"})

	for _, c := range []prometheus.Collector{pages, records, failures, duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PromMetrics{
		pages:    pages,
		records:  records,
		failures: failures,
		duration: duration,
	}, nil
}

func (p *PromMetrics) PageFetched(app string, records int) {
	p.pages.WithLabelValues(app).Inc()
}

func (p *PromMetrics) RecordsEmitted(app string, n int) {
	p.records.WithLabelValues(app).Add(float64(n))
}

func (p *PromMetrics) RequestFailed(app, kind string) {
	p.failures.WithLabelValues(app, kind).Inc()
}

func (p *PromMetrics) ObserveSync(app string, d time.Duration) {
	p.duration.WithLabelValues(app).Observe(d.Seconds())
}
