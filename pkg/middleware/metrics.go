package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/claimtech/dialler/pkg/metrics"
)

// MetricsMiddleware records latency and success per route
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordRequest(endpoint, c.Writer.Status() < 500, time.Since(start))
	}
}
