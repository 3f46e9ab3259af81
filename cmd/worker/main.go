package main

import (
	"context"
	"log"

	"paycenter/internal/app"
	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/notify"
	"paycenter/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// 消费 notice.backend=asynq 时写入 Redis 的客户端通知
func main() {
	config.LoadConfig()
	cfg := config.GlobalConfig

	if err := logger.InitLogger(&cfg.Log); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	queue := cfg.Notice.Queue
	if queue == "" {
		queue = "default"
	}
	workers := cfg.Notice.Workers
	if workers <= 0 {
		workers = 5
	}

	srv := asynq.NewServer(app.RedisConnOpt(cfg.Redis), asynq.Config{
		Concurrency: workers,
		Queues:      map[string]int{queue: 1},
		Logger:      logger.Named("asynq").Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried >= maxRetry {
				logger.Log.Error("Client notice dropped", zap.String("type", task.Type()), zap.Error(err))
			}
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(notify.TypeClientNotice, notify.NewNoticeHandler(app.NewSender(cfg)))

	logger.Log.Info("Notice worker starting", zap.String("queue", queue), zap.Int("concurrency", workers))
	// Run 阻塞直到收到 SIGTERM/SIGINT
	if err := srv.Run(mux); err != nil {
		logger.Log.Fatal("Notice worker failed", zap.Error(err))
	}
}
