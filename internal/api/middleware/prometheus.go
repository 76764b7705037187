package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/observability/metrics"
)

// Prometheus collects HTTP request metrics for every route.
func Prometheus() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route, status).Observe(duration.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}
