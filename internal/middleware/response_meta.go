package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorclass-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// Meta keys written by handlers.
const (
	MetaCacheHit       = "cache_hit"
	MetaCreatedCount   = "created_count"
	MetaFailedCount    = "failed_count"
	MetaRequestID      = "request_id"
	MetaProcessingTime = "processing_time_ms"
)

// WithResponseMeta gives every request a meta map that handlers pass to the
// response envelope. It must run after requestid.Middleware.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := map[string]interface{}{}
		if id := requestid.Value(c); id != "" {
			meta[MetaRequestID] = id
		}
		c.Set(responseMetaKey, meta)
		c.Next()
		if _, exists := meta[MetaProcessingTime]; !exists {
			meta[MetaProcessingTime] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether a balance or used count came from Redis.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[MetaCacheHit] = hit
}

// SetBatchOutcome records how many members of a group submission were
// admitted and how many were refused.
func SetBatchOutcome(c *gin.Context, created, failed int) {
	meta := ensureMeta(c)
	meta[MetaCreatedCount] = created
	meta[MetaFailedCount] = failed
}

// ExtractMeta returns the meta map stored on the context, or nil.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
