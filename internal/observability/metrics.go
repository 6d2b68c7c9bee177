package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fimserve"

// Metrics holds the Prometheus counters and histograms for FIM orchestration.
type Metrics struct {
	CatalogQueries *prometheus.CounterVec // labels: status={ok,info,not_found,assumed,error}
	CatalogFetches *prometheus.CounterVec // labels: outcome={success,error}

	// Object transfers.
	ObjectDownloads *prometheus.CounterVec // labels: store={s3,gcs}, outcome={downloaded,skipped,error}
	DownloadBytes   prometheus.Counter

	// Artifact ensurer.
	Artifacts          *prometheus.CounterVec // labels: result={copied,generated,missing}
	GenerationDuration prometheus.Histogram

	// Streamflow retrieval.
	StreamflowFiles *prometheus.CounterVec // labels: source={retrospective,forecast,geoglows,usgs}, outcome={success,error}

	// USGS client.
	USGSRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	USGSCache       *prometheus.CounterVec // labels: result={hit,miss}
	USGSAPIDuration prometheus.Histogram

	InundationRuns  *prometheus.CounterVec // labels: outcome={success,error,skipped}
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.CatalogQueries,
		m.CatalogFetches,
		m.ObjectDownloads,
		m.DownloadBytes,
		m.Artifacts,
		m.GenerationDuration,
		m.StreamflowFiles,
		m.USGSRequests,
		m.USGSCache,
		m.USGSAPIDuration,
		m.InundationRuns,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		CatalogQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_queries_total",
			Help:      help("Benchmark catalog queries by result status."),
		}, []string{"status"}),
		CatalogFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetches_total",
			Help:      help("Benchmark catalog downloads by outcome."),
		}, []string{"outcome"}),
		ObjectDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_downloads_total",
			Help:      help("Object store downloads by store and outcome."),
		}, []string{"store", "outcome"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      help("Bytes written to disk from object stores."),
		}),
		Artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      help("Model output artifact requests by result."),
		}, []string{"result"}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      help("Duration of an inputs, discharge and mapping generation run."),
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		StreamflowFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamflow_files_total",
			Help:      help("Streamflow source files processed by source and outcome."),
		}, []string{"source", "outcome"}),
		USGSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usgs_requests_total",
			Help:      help("USGS instantaneous-values requests by outcome."),
		}, []string{"outcome"}),
		USGSCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usgs_cache_total",
			Help:      help("USGS series cache lookups by result."),
		}, []string{"result"}),
		USGSAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usgs_api_duration_seconds",
			Help:      help("USGS API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		InundationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inundation_runs_total",
			Help:      help("Inundation mapping program runs by outcome."),
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      help("Lifecycle events published to Kafka by outcome."),
		}, []string{"outcome"}),
	}
}
