package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PageRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brentwatch_page_renders_total",
			Help: "Total report pages rendered",
		},
		[]string{"page", "status"},
	)

	ForecastFits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brentwatch_forecast_fits_total",
			Help: "Total forecast models fitted",
		},
	)

	ForecastFitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brentwatch_forecast_fit_seconds",
			Help:    "Time spent fitting the forecast model",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	ForecastCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brentwatch_forecast_cache_lookups_total",
			Help: "Forecast model cache lookups",
		},
		[]string{"result"},
	)

	PricesImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brentwatch_prices_imported_total",
			Help: "Price rows imported from spreadsheets",
		},
		[]string{"outcome"},
	)

	SourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brentwatch_source_fetches_total",
			Help: "Source spreadsheet downloads",
		},
		[]string{"scheme", "status"},
	)

	SourceFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brentwatch_source_fetch_latency_seconds",
			Help:    "Source spreadsheet download latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	CommentaryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brentwatch_commentary_requests_total",
			Help: "Generated commentary API calls",
		},
		[]string{"status"},
	)
)
