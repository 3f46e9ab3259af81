// Package app wires the shared infrastructure used by cmd/server, cmd/cron and cmd/worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/notify"
	"paycenter/internal/pkg/push"
	"paycenter/internal/pkg/worker"
	"paycenter/pkg/database"
	"paycenter/pkg/idgen"
	"paycenter/pkg/lock"
	"paycenter/pkg/logger"
	"paycenter/pkg/metrics"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Infra 进程级基础设施
type Infra struct {
	Config  config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Metrics *metrics.MetricsCollector
	Pool    *database.PoolMonitor

	cleanups []func()
}

// Setup 加载配置并初始化日志、ID 生成器、数据库与 Redis
func Setup() (*Infra, error) {
	config.LoadConfig()
	cfg := config.GlobalConfig

	if err := logger.InitLogger(&cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := idgen.Init(cfg.App.NodeID); err != nil {
		return nil, fmt.Errorf("init idgen: %w", err)
	}

	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		return nil, err
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		return nil, err
	}

	infra := &Infra{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Metrics: metrics.GetGlobalCollector(),
	}
	infra.OnClose(func() { _ = rdb.Close() })
	if sqlDB, err := db.DB(); err == nil {
		infra.OnClose(func() { _ = sqlDB.Close() })
	}

	pool, err := database.NewPoolMonitor(db, database.PoolMonitorConfig{})
	if err != nil {
		return nil, err
	}
	if err := pool.Register(prometheus.DefaultRegisterer, cfg.Database.DBName); err != nil {
		logger.Log.Warn("Failed to register db stats collector", zap.Error(err))
	}
	infra.Pool = pool

	return infra, nil
}

// OnClose 注册退出时的清理函数，按注册的逆序执行
func (i *Infra) OnClose(fn func()) {
	i.cleanups = append(i.cleanups, fn)
}

func (i *Infra) Close() {
	for j := len(i.cleanups) - 1; j >= 0; j-- {
		i.cleanups[j]()
	}
	logger.Sync()
}

// NewLocker 按配置选择锁实现，local 仅用于单实例部署
func NewLocker(cfg config.RepairConfig, rdb *redis.Client) lock.Locker {
	if cfg.LockBackend == "local" || rdb == nil {
		logger.Log.Warn("Using in-process locker, repairs are only serialized within this instance")
		return lock.NewLocalLocker()
	}
	return lock.NewRedisLocker(rdb)
}

// NewSender 组装通知投递方式：Webhook 必选，配置了推送时追加 App 推送
func NewSender(cfg config.Config) notify.Sender {
	senders := notify.MultiSender{notify.NewWebhookSender(cfg.Notice.Timeout)}

	if cfg.Push.AccessKeyID != "" {
		p, err := push.NewAliyunPushSender(cfg.Push)
		if err != nil {
			logger.Log.Error("Failed to init push sender", zap.Error(err))
		} else {
			senders = append(senders, p)
		}
	}
	return senders
}

func NewSigner(cfg config.NoticeConfig) notify.Signer {
	return notify.Signer{SignType: cfg.SignType, Secret: cfg.SignSecret}
}

// NewDispatcher 按 notice.backend 选择投递队列。
// pool 模式下返回的 stop 会等待在途任务结束；asynq 模式需要单独运行 cmd/worker。
func NewDispatcher(ctx context.Context, cfg config.Config, m *metrics.MetricsCollector) (notify.Dispatcher, func(), error) {
	signer := NewSigner(cfg.Notice)

	switch cfg.Notice.Backend {
	case "asynq":
		client := asynq.NewClient(RedisConnOpt(cfg.Redis))
		return notify.NewAsynqDispatcher(client, signer, cfg.Notice.Queue, cfg.Notice.MaxRetry),
			func() { _ = client.Close() }, nil
	case "pool", "":
		d := notify.NewPoolDispatcher(NewSender(cfg), signer, m, worker.Options{
			WorkerNum:  cfg.Notice.Workers,
			BufferSize: cfg.Notice.QueueSize,
			MaxRetry:   cfg.Notice.MaxRetry,
			RetryDelay: time.Second,
		})
		d.Start(ctx)
		return d, d.Stop, nil
	default:
		return nil, nil, errors.New("unknown notice backend: " + cfg.Notice.Backend)
	}
}

func RedisConnOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}
