package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	metaKey      = "response_meta"
	metaStartKey = "response_meta_start"
)

// WithResponseMeta marks the request start so handlers can report processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Next()
	}
}

// SetCacheHit records whether the projection came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	meta := c.GetStringMap(metaKey)
	if meta == nil {
		meta = map[string]interface{}{}
		c.Set(metaKey, meta)
	}
	meta["cache_hit"] = hit
}

// ResponseMeta returns a copy of the collected meta, stamped with
// processing_time_ms when WithResponseMeta ran.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range c.GetStringMap(metaKey) {
		out[k] = v
	}
	if start, ok := c.Get(metaStartKey); ok {
		if t, ok := start.(time.Time); ok {
			out["processing_time_ms"] = time.Since(t).Milliseconds()
		}
	}
	return out
}
