package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

// MetricsService owns the Prometheus registry and the counters the services report into.
// Every method is safe on a nil receiver so tests can pass nil.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	rankFallback    prometheus.Counter
	rankUnmatched   prometheus.Counter
	rankBoardErrors *prometheus.CounterVec
	chatSent        prometheus.Counter
	chatLocked      prometheus.Counter
	bulkWrites      *prometheus.CounterVec
	previewJobs     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	rankFallbackCount    uint64
	rankUnmatchedCount   uint64
	chatSentCount        uint64
	chatLockedCount      uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		rankFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rank_identifier_fallback_total",
			Help: "Score records joined to a student through the user id instead of the profile id",
		}),
		rankUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rank_unmatched_records_total",
			Help: "Score records that matched no roster member and were left out of a ranking",
		}),
		rankBoardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rank_board_fetch_failures_total",
			Help: "Exam boards that could not be loaded and were treated as empty",
		}, []string{"exam"}),
		chatSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Chat messages persisted",
		}),
		chatLocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_locked_rejections_total",
			Help: "Chat sends refused because the class chat was locked",
		}),
		bulkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_write_items_total",
			Help: "Items processed by bulk mark and attendance writes",
		}, []string{"kind", "outcome"}),
		previewJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachment_preview_jobs_total",
			Help: "Attachment preview jobs by outcome",
		}, []string{"outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.rankFallback, m.rankUnmatched, m.rankBoardErrors,
		m.chatSent, m.chatLocked, m.bulkWrites, m.previewJobs,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// IncRankFallback counts a record joined through the secondary identifier.
func (m *MetricsService) IncRankFallback() {
	if m == nil {
		return
	}
	m.rankFallback.Inc()
	atomic.AddUint64(&m.rankFallbackCount, 1)
}

// IncRankUnmatched counts a record excluded from a ranking.
func (m *MetricsService) IncRankUnmatched() {
	if m == nil {
		return
	}
	m.rankUnmatched.Inc()
	atomic.AddUint64(&m.rankUnmatchedCount, 1)
}

// IncBoardFetchFailure counts an exam board that was replaced by an empty one.
func (m *MetricsService) IncBoardFetchFailure(exam string) {
	if m == nil {
		return
	}
	m.rankBoardErrors.WithLabelValues(exam).Inc()
}

// IncChatSent counts a persisted chat message.
func (m *MetricsService) IncChatSent() {
	if m == nil {
		return
	}
	m.chatSent.Inc()
	atomic.AddUint64(&m.chatSentCount, 1)
}

// IncChatLocked counts a send refused by the class lock.
func (m *MetricsService) IncChatLocked() {
	if m == nil {
		return
	}
	m.chatLocked.Inc()
	atomic.AddUint64(&m.chatLockedCount, 1)
}

// ObserveBulkWrite records the outcome counts of a bulk write.
func (m *MetricsService) ObserveBulkWrite(kind string, result models.BulkResult) {
	if m == nil {
		return
	}
	m.bulkWrites.WithLabelValues(kind, "created").Add(float64(result.Created))
	m.bulkWrites.WithLabelValues(kind, "updated").Add(float64(result.Updated))
	m.bulkWrites.WithLabelValues(kind, "failed").Add(float64(result.Failed))
}

// IncPreviewJob counts a preview job by outcome (ok, failed, skipped).
func (m *MetricsService) IncPreviewJob(outcome string) {
	if m == nil {
		return
	}
	m.previewJobs.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated counters for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		RankFallbackJoins:        atomic.LoadUint64(&m.rankFallbackCount),
		RankUnmatchedRecords:     atomic.LoadUint64(&m.rankUnmatchedCount),
		ChatMessagesSent:         atomic.LoadUint64(&m.chatSentCount),
		ChatLockedRejections:     atomic.LoadUint64(&m.chatLockedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
