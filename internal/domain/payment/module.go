package payment

import (
	"context"

	"paycenter/internal/domain/payment/handler"
	"paycenter/internal/domain/payment/repository"
	"paycenter/internal/domain/payment/service"
	"paycenter/internal/domain/payment/strategy"
	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/middleware"
	"paycenter/internal/pkg/registry"
	"paycenter/internal/pkg/uploader"
	"paycenter/pkg/logger"
	"paycenter/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PaymentModule 支付订单修复与对账模块
type PaymentModule struct{}

func init() {
	registry.Register(&PaymentModule{})
}

func (m *PaymentModule) Name() string {
	return "payment"
}

func (m *PaymentModule) Priority() int {
	return 10
}

// Services 支付模块对外提供的服务，cmd/cron 复用
type Services struct {
	Orders     repository.OrderRepository
	Strategies *strategy.Registry
	Repair     service.RepairService
	Callback   service.CallbackService
	Sync       service.SyncService
}

// NewServices 组装支付模块依赖
func NewServices(ctx *registry.ModuleContext) *Services {
	cfg := config.GlobalConfig

	// 1. 依赖注入
	orders := repository.NewOrderRepository(ctx.DB)
	records := repository.NewRecordRepository(ctx.DB)
	strategies := NewStrategies(cfg, ctx.Metrics)

	repair := service.NewRepairService(ctx.Locker, strategies, orders, records, ctx.Transactor, ctx.Dispatcher, ctx.Metrics,
		service.RepairConfig{LockLease: cfg.Repair.LockLease, LockWait: cfg.Repair.LockWait})

	var reports uploader.ReportStore
	if cfg.OSS.BucketName != "" {
		oss, err := uploader.NewAliyunOSSUploader(cfg.OSS, cfg.Sync.ReportDir)
		if err != nil {
			logger.Log.Error("Failed to init report uploader", zap.Error(err))
		} else {
			reports = oss
		}
	}

	return &Services{
		Orders:     orders,
		Strategies: strategies,
		Repair:     repair,
		Callback:   service.NewCallbackService(strategies, orders, repair),
		Sync: service.NewSyncService(strategies, orders, repair, reports, ctx.Metrics,
			service.SyncConfig{PendingAge: cfg.Sync.PendingAge, BatchSize: cfg.Sync.BatchSize}),
	}
}

// NewStrategies 按配置注册渠道修复策略，未配置的渠道不注册
func NewStrategies(cfg config.Config, m *metrics.MetricsCollector) *strategy.Registry {
	reg := strategy.NewRegistry()

	// 支付宝
	if cfg.Alipay.AppID != "" {
		alipayStrategy, err := strategy.NewAlipayStrategy(cfg.Alipay, m)
		if err != nil {
			logger.Log.Error("Failed to init Alipay strategy", zap.Error(err))
		} else {
			reg.Register(alipayStrategy)
		}
	}

	// 微信支付
	if cfg.Wechat.MchID != "" {
		wechatStrategy, err := strategy.NewWechatStrategy(context.Background(), cfg.Wechat, m)
		if err != nil {
			logger.Log.Error("Failed to init Wechat strategy", zap.Error(err))
		} else {
			reg.Register(wechatStrategy)
		}
	}

	logger.Log.Info("Repair strategies registered", zap.Strings("channels", reg.Channels()))
	return reg
}

func (m *PaymentModule) Init(ctx *registry.ModuleContext) error {
	svc := NewServices(ctx)
	h := handler.NewPaymentHandler(svc.Orders, svc.Strategies, svc.Repair, svc.Callback, svc.Sync)

	// 2. 路由注册
	setupRoutes(ctx.Router, h)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.PaymentHandler) {
	cfg := config.GlobalConfig
	g := r.Group("/payment")

	// 支付回调 (无需鉴权，但需验签)
	notify := g.Group("/notify")
	notify.Use(middleware.RateLimitMiddleware(
		middleware.NewIPRateLimiter(rate.Limit(cfg.Server.NotifyQPS), cfg.Server.NotifyBurst)))
	{
		notify.POST("/alipay", h.AlipayNotify)
		notify.POST("/wechat", h.WechatNotify)
	}

	// 需要鉴权的接口
	auth := g.Group("")
	auth.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		auth.POST("/sync/:order_no", h.SyncOrder)
		auth.POST("/sync", middleware.AdminMiddleware(), h.Sweep)
		auth.POST("/repair", middleware.AdminMiddleware(), h.Repair)
	}
}
