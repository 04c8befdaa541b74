package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsStarted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "concat_jobs_started_total", Help: "Concatenation jobs accepted"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "concat_jobs_completed_total", Help: "Jobs that produced an artifact"})
	JobsFailed       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "concat_jobs_failed_total", Help: "Jobs that failed, by stage"}, []string{"stage"})
	SegmentsFetched  = prometheus.NewCounter(prometheus.CounterOpts{Name: "concat_segments_fetched_total", Help: "Segments downloaded into workspaces"})
	DownloadBytes    = prometheus.NewCounter(prometheus.CounterOpts{Name: "concat_download_bytes_total", Help: "Bytes downloaded across all segments"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "concat_rate_limit_rejects_total", Help: "Requests rejected by the campaign rate limiter"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "concat_jobs_inflight", Help: "Jobs currently running"})
	JobDuration      = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "concat_job_duration_seconds",
		Help:    "End-to-end job duration from acceptance to terminal state",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsStarted,
			JobsCompleted,
			JobsFailed,
			SegmentsFetched,
			DownloadBytes,
			RateLimitRejects,
			InFlightGauge,
			JobDuration,
		)
	})
	return promhttp.Handler()
}
