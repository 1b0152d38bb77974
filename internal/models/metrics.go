package models

import "time"

// SystemMetrics is a JSON snapshot of the counters exported on /metrics.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	RankFallbackJoins        uint64    `json:"rank_fallback_joins"`
	RankUnmatchedRecords     uint64    `json:"rank_unmatched_records"`
	ChatMessagesSent         uint64    `json:"chat_messages_sent"`
	ChatLockedRejections     uint64    `json:"chat_locked_rejections"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
