package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"
	"github.com/Criptoruim/jackalmultibuy/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// timingWriter stamps the elapsed time on the response right before the headers go out
type timingWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timingWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	d := time.Since(w.start)
	w.Header().Set("X-Response-Time", d.String())
	w.Header().Set("X-Response-Time-Ms", strconv.FormatInt(d.Milliseconds(), 10))
}

func (w *timingWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// PerformanceMiddleware adds X-Response-Time headers and logs slow requests
func PerformanceMiddleware(slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		tw := &timingWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Writer = tw

		c.Next()

		if d := time.Since(tw.start); slow > 0 && d > slow {
			logger.GetLogger().WithContext(c.Request.Context()).Warn("Slow request",
				zap.String("route", c.FullPath()),
				zap.Duration("duration", d),
			)
		}
	}
}

// RequestSizeMiddleware rejects bodies larger than limit bytes
func RequestSizeMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			appErr := models.NewAppErrorWithDetails(
				models.ErrorCodeInvalidRequest,
				"Request body too large",
				"Maximum body size is "+strconv.FormatInt(limit, 10)+" bytes",
			)
			appErr.StatusCode = http.StatusRequestEntityTooLarge
			models.HandleError(c, appErr, logger.GetLogger().WithContext(c.Request.Context()))
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// ConcurrencyMiddleware exposes the active request count
func ConcurrencyMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeRequests := metricsCollector.GetMetrics().ActiveRequests
		c.Header("X-Active-Requests", strconv.FormatInt(activeRequests, 10))
		c.Next()
	}
}
