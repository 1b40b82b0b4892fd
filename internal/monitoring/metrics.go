package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the pipeline.
type Metrics struct {
	PagesFetched  *prometheus.CounterVec
	GamesScraped  prometheus.Counter
	GamesUnranked prometheus.Counter
	TagsExtracted prometheus.Counter
	ActionsTotal  *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	BulkDuration  prometheus.Histogram
	HTTPDuration  *prometheus.HistogramVec
}

// NewMetrics registers all instruments with reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bgg_pages_fetched_total",
			Help: "Upstream page fetches, split by cache outcome.",
		}, []string{"cache"}), // "hit" or "miss"
		GamesScraped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bgg_games_scraped_total",
			Help: "Games successfully enriched from the detail API.",
		}),
		GamesUnranked: factory.NewCounter(prometheus.CounterOpts{
			Name: "bgg_games_unranked_total",
			Help: "Detail records dropped for being unranked.",
		}),
		TagsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bgg_tags_extracted_total",
			Help: "Distinct tags derived from scraped games.",
		}),
		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bgg_index_actions_total",
			Help: "Index actions applied, by operation and index.",
		}, []string{"op", "index"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgg_fetch_duration_seconds",
			Help:    "Duration of upstream fetches on cache misses.",
			Buckets: prometheus.DefBuckets,
		}),
		BulkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgg_bulk_flush_duration_seconds",
			Help:    "Duration of bulk writes to the document store.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bgg_http_request_duration_seconds",
			Help:    "Duration of requests to the operational endpoints.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) IncPageFetched(outcome string) {
	m.PagesFetched.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddGamesScraped(n int) {
	m.GamesScraped.Add(float64(n))
}

func (m *Metrics) AddGamesUnranked(n int) {
	m.GamesUnranked.Add(float64(n))
}

func (m *Metrics) AddTagsExtracted(n int) {
	m.TagsExtracted.Add(float64(n))
}

func (m *Metrics) IncAction(op, index string) {
	m.ActionsTotal.WithLabelValues(op, index).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveBulk(d time.Duration) {
	m.BulkDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.HTTPDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
