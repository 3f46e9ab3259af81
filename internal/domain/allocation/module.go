package allocation

import (
	"context"

	"paycenter/internal/domain/allocation/handler"
	"paycenter/internal/domain/allocation/repository"
	"paycenter/internal/domain/allocation/service"
	"paycenter/internal/domain/allocation/strategy"
	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/middleware"
	"paycenter/internal/pkg/registry"
	"paycenter/pkg/logger"
	"paycenter/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AllocationModule 分账接收方与分账结果模块
type AllocationModule struct{}

func init() {
	registry.Register(&AllocationModule{})
}

func (m *AllocationModule) Name() string {
	return "allocation"
}

func (m *AllocationModule) Priority() int {
	return 20
}

func (m *AllocationModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	strategies := NewStrategies(config.GlobalConfig, ctx.Metrics)
	receivers := service.NewReceiverService(strategies, repository.NewReceiverRepository(ctx.DB), ctx.Locker)
	orders := service.NewAllocOrderService(repository.NewAllocOrderRepository(ctx.DB), ctx.Transactor)
	h := handler.NewAllocationHandler(receivers, orders)

	// 2. 路由注册
	setupRoutes(ctx.Router, h)

	return nil
}

// NewStrategies 按已配置的支付渠道注册接收方策略
func NewStrategies(cfg config.Config, m *metrics.MetricsCollector) *strategy.Registry {
	reg := strategy.NewRegistry()

	if cfg.Alipay.AppID != "" {
		s, err := strategy.NewAlipayReceiverStrategy(cfg.Alipay, m)
		if err != nil {
			logger.Log.Error("Failed to init Alipay receiver strategy", zap.Error(err))
		} else {
			reg.Register(s)
		}
	}

	if cfg.Wechat.MchID != "" {
		s, err := strategy.NewWechatReceiverStrategy(context.Background(), cfg.Wechat, m)
		if err != nil {
			logger.Log.Error("Failed to init Wechat receiver strategy", zap.Error(err))
		} else {
			reg.Register(s)
		}
	}

	logger.Log.Info("Receiver strategies registered", zap.Strings("channels", reg.Channels()))
	return reg
}

func setupRoutes(r *gin.Engine, h *handler.AllocationHandler) {
	g := r.Group("/allocation")
	g.Use(middleware.AuthMiddleware(config.GlobalConfig.JWT.Secret))
	{
		g.GET("/receiver/types", h.ReceiverTypes)
		g.GET("/receivers", h.ListReceivers)
		g.GET("/receiver/:receiver_no", h.GetReceiver)
		g.GET("/order/:alloc_no", h.GetOrder)
	}

	// 变更类接口仅管理员可用
	admin := g.Group("")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/receiver", h.AddReceiver)
		admin.POST("/receiver/:receiver_no/bind", h.BindReceiver)
		admin.POST("/receiver/:receiver_no/unbind", h.UnbindReceiver)
		admin.DELETE("/receiver/:receiver_no", h.RemoveReceiver)
		admin.POST("/order/:alloc_no/result", h.ApplyResults)
	}
}
