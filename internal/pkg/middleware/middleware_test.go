package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paycenter/pkg/logger"
	"paycenter/pkg/metrics"
	"paycenter/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("operator"))
	})
	r.GET("/ping", handlers...)
	return r
}

func get(r *gin.Engine, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	req.RemoteAddr = "10.0.0.1:12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, role int) map[string]string {
	token, _, err := utils.GenerateToken("ops@paycenter", role, testSecret, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testSecret), AdminMiddleware())

	t.Run("Missing header", func(t *testing.T) {
		w := get(r, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Malformed header", func(t *testing.T) {
		w := get(r, map[string]string{"Authorization": "Token abc"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Invalid token", func(t *testing.T) {
		w := get(r, map[string]string{"Authorization": "Bearer abc.def.ghi"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Operator is not admin", func(t *testing.T) {
		w := get(r, bearer(t, utils.RoleOperator))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Admin passes", func(t *testing.T) {
		w := get(r, bearer(t, utils.RoleAdmin))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ops@paycenter", w.Body.String())
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(0.001, 2)
	r := newRouter(RateLimitMiddleware(limiter))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, nil).Code)
	assert.Equal(t, 1, limiter.Size())
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	limiter := NewIPRateLimiter(10, 10)
	limiter.GetLimiter("10.0.0.1")
	limiter.GetLimiter("10.0.0.2")

	limiter.mu.Lock()
	limiter.ips["10.0.0.1"].lastSeen = time.Now().Add(-2 * limiterIdleTTL)
	limiter.mu.Unlock()

	assert.Equal(t, 1, limiter.Cleanup())
	assert.Equal(t, 1, limiter.Size())
}

func TestTraceAndLogger(t *testing.T) {
	r := newRouter(TraceMiddleware(), LoggerMiddleware())

	t.Run("Propagates incoming ids", func(t *testing.T) {
		w := get(r, map[string]string{"X-Trace-ID": "trace-1", "X-Request-ID": "req-1"})
		assert.Equal(t, "trace-1", w.Header().Get("X-Trace-ID"))
		assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	})

	t.Run("Generates ids", func(t *testing.T) {
		w := get(r, nil)
		assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("Oversized incoming trace id is replaced", func(t *testing.T) {
		w := get(r, map[string]string{"X-Trace-ID": strings.Repeat("x", 200)})
		traceID := w.Header().Get("X-Trace-ID")
		assert.NotEmpty(t, traceID)
		assert.LessOrEqual(t, len(traceID), 64)
	})

	t.Run("Trace id reaches the request context", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		engine := gin.New()
		engine.GET("/ping", TraceMiddleware(), func(c *gin.Context) {
			c.String(http.StatusOK, logger.TraceID(c.Request.Context()))
		})

		w := get(engine, map[string]string{"X-Trace-ID": "trace-2"})
		assert.Equal(t, "trace-2", w.Body.String())
	})
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRouter(MetricsMiddleware(metrics.NewMetricsCollector(reg)))

	get(r, nil)
	get(r, nil)

	count, err := testutil.GatherAndCount(reg, "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
