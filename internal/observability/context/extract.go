package context

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func RequestIDFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if ctx := c.Request.Context(); ctx != nil {
		if value := RequestIDFromContext(ctx); value != "" {
			return value
		}
	}
	if value := strings.TrimSpace(c.GetString("request_id")); value != "" {
		return value
	}
	return ""
}

func LotIDFromGin(c *gin.Context) int64 {
	if c == nil {
		return 0
	}
	if ctx := c.Request.Context(); ctx != nil {
		if value := LotIDFromContext(ctx); value != 0 {
			return value
		}
	}
	if raw, ok := c.Get("parking_lot_id"); ok {
		if value, ok := raw.(int64); ok {
			return value
		}
	}
	return 0
}
