package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Interest outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeDenied   = "denied"
	OutcomeFailed   = "failed"
)

// MetricsManager holds the service's Prometheus collectors on a private registry.
type MetricsManager struct {
	Registry *prometheus.Registry

	InterestTotal       *prometheus.CounterVec // by outcome
	TransitionsTotal    *prometheus.CounterVec // by target status
	CoinDebitsTotal     *prometheus.CounterVec // by action
	CoinRefundsTotal    *prometheus.CounterVec // by action
	ListingsCreated     prometheus.Counter
	RatingsCreated      prometheus.Counter
	BrowseResults       prometheus.Histogram
	CatalogRefreshTotal *prometheus.CounterVec // by result
	APIErrorsTotal      *prometheus.CounterVec // by method, code
	APILatency          *prometheus.HistogramVec
}

func NewMetricsManager(namespace string) *MetricsManager {
	m := &MetricsManager{
		Registry: prometheus.NewRegistry(),
		InterestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interest_requests_total",
			Help:      "Expressions of interest by outcome.",
		}, []string{"outcome"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_transitions_total",
			Help:      "Conversation status changes by target status.",
		}, []string{"status"}),
		CoinDebitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coin_debits_total",
			Help:      "Coins debited by action.",
		}, []string{"action"}),
		CoinRefundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coin_refunds_total",
			Help:      "Coins refunded after a failed follow-up step.",
		}, []string{"action"}),
		ListingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_created_total",
			Help:      "Listings created.",
		}),
		RatingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratings_created_total",
			Help:      "Ratings submitted.",
		}),
		BrowseResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "browse_results",
			Help:      "Number of listings returned per browse.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		CatalogRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_total",
			Help:      "Catalog reloads by result.",
		}, []string{"result"}),
		APIErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "RPC errors by method and status code.",
		}, []string{"method", "code"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_latency_seconds",
			Help:      "RPC latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.Registry.MustRegister(
		m.InterestTotal,
		m.TransitionsTotal,
		m.CoinDebitsTotal,
		m.CoinRefundsTotal,
		m.ListingsCreated,
		m.RatingsCreated,
		m.BrowseResults,
		m.CatalogRefreshTotal,
		m.APIErrorsTotal,
		m.APILatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the private registry.
func (m *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves /metrics until the listener fails.
// An empty port disables the server.
func StartMetricsServer(port string, log *slog.Logger, m *MetricsManager) error {
	if port == "" {
		log.Info("metrics port not configured, metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	log.Info("metrics server starting", "port", port, "path", "/metrics")
	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return server.ListenAndServe()
}
