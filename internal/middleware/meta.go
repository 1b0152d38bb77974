package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	requestStartKey = "request_start"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta stamps the request start so handlers can report timing.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// SetCacheHit records whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	c.Set(cacheHitKey, hit)
}

// Meta builds the envelope meta block for the current request.
func Meta(c *gin.Context) map[string]interface{} {
	meta := map[string]interface{}{}
	if value, ok := c.Get(requestStartKey); ok {
		if start, ok := value.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
	if hit, ok := c.Get(cacheHitKey); ok {
		meta[cacheHitKey] = hit
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
