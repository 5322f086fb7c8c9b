package middleware

import (
	"time"

	"github.com/Criptoruim/jackalmultibuy/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware creates a middleware that tracks request metrics per route template
func MetricsMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		metricsCollector.RecordRequest()

		c.Next()

		metricsCollector.RecordRequestComplete(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(startTime))
	}
}
