// Package metrics exposes Prometheus collectors for the menu cache service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	cacheLookupsTotal          *prometheus.CounterVec
	scrapesTotal               *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	scrapeJobsTotal            *prometheus.CounterVec
	queueDepth                 prometheus.Gauge
	probesTotal                *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observe functions are
// no-ops until Init has run.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menucache_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menucache_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method", "route"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menucache_cache_lookups_total",
				Help: "Meal cache lookups, labeled by entry point and result (hit or miss).",
			},
			[]string{"entry", "result"},
		)

		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menucache_scrapes_total",
				Help: "Scraper invocations, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menucache_scrape_duration_seconds",
				Help:    "Histogram of scraper process run time, labeled by operation.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"operation"},
		)

		scrapeJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menucache_scrape_jobs_total",
				Help: "Background scrape jobs, labeled by status.",
			},
			[]string{"status"},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "menucache_queue_depth",
				Help: "Number of scrape jobs waiting in the queue.",
			},
		)

		probesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menucache_probes_total",
				Help: "Reachability probes, labeled by site and result.",
			},
			[]string{"site", "result"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a meal cache hit or miss for the given entry point.
func ObserveCacheLookup(entry string, hit bool) {
	if cacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(entry, result).Inc()
}

// ObserveScrape records one scraper run. Outcome is "success" or the failure kind.
func ObserveScrape(operation, outcome string, duration time.Duration) {
	if scrapesTotal == nil {
		return
	}
	scrapesTotal.WithLabelValues(operation, outcome).Inc()
	scrapeDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	if scrapeJobsTotal == nil {
		return
	}
	scrapeJobsTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth reports the current queue length.
func SetQueueDepth(n int) {
	if queueDepth == nil {
		return
	}
	queueDepth.Set(float64(n))
}

// ObserveProbe counts a reachability probe for the URL's host.
func ObserveProbe(rawURL string, reachable bool) {
	if probesTotal == nil {
		return
	}
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	probesTotal.WithLabelValues(SanitizeSite(rawURL), result).Inc()
}
