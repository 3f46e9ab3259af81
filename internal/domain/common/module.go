package common

import (
	commonHandler "paycenter/internal/pkg/common"
	"paycenter/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CommonModule 健康检查与指标暴露
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	checks := map[string]commonHandler.Pinger{}
	if ctx.Pool != nil {
		checks["db"] = ctx.Pool
	}
	if ctx.Redis != nil {
		checks["redis"] = commonHandler.RedisPinger(ctx.Redis)
	}

	setupRoutes(ctx.Router, commonHandler.NewHealthHandler(ctx.Pool, checks))
	return nil
}

func setupRoutes(r *gin.Engine, h *commonHandler.HealthHandler) {
	r.GET("/healthz", h.Live)
	r.GET("/readyz", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
