package middleware

import (
	"paycenter/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceHeader = "X-Trace-ID"
	traceKey    = "traceID"
	// 上游传入的追踪 ID 超长时重新生成，避免污染日志
	maxTraceIDLen = 64
)

// TraceMiddleware 为请求分配追踪 ID，写入响应头和 request context，
// 修复、对账等服务层日志通过 logger.Ctx 带出 trace_id
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" || len(traceID) > maxTraceIDLen {
			traceID = uuid.NewString()
		}

		c.Set(traceKey, traceID)
		c.Header(TraceHeader, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Next()
	}
}
