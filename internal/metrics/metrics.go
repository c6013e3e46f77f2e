package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SearchesTotal   *prometheus.CounterVec
	UploadsTotal    *prometheus.CounterVec
	PlatformSeconds *prometheus.HistogramVec
	ActiveSearches  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SearchesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "geomap_searches_total",
			Help: "Total number of semantic search requests, by outcome.",
		}, []string{"status"}),
		UploadsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "geomap_uploads_total",
			Help: "Total number of feature uploads, by outcome.",
		}, []string{"status"}),
		PlatformSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geomap_platform_request_duration_seconds",
			Help:    "Duration of requests to the embeddings platform API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ActiveSearches: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "geomap_active_searches",
			Help: "Current number of search requests in flight.",
		}),
	}
}
