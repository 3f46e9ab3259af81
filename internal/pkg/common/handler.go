package handler

import (
	"context"
	"net/http"
	"time"

	"paycenter/pkg/database"
	"paycenter/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pinger 依赖连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// RedisPinger 包装 Redis 客户端
func RedisPinger(rdb *redis.Client) Pinger {
	return redisPinger{rdb: rdb}
}

type HealthHandler struct {
	checks map[string]Pinger
	pool   *database.PoolMonitor
}

// NewHealthHandler checks 中为 nil 的依赖会被忽略
func NewHealthHandler(pool *database.PoolMonitor, checks map[string]Pinger) *HealthHandler {
	h := &HealthHandler{checks: make(map[string]Pinger), pool: pool}
	for name, p := range checks {
		if p != nil {
			h.checks[name] = p
		}
	}
	return h
}

// Live 进程存活
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 依赖全部可用才返回 200
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			logger.Log.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{"dependencies": deps}
	if h.pool != nil {
		body["db_pool"] = h.pool.Last()
	}
	c.JSON(status, body)
}
