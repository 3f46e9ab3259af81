package middleware

import (
	"time"

	"paycenter/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware 记录 HTTP 请求指标
func MetricsMiddleware(m *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
