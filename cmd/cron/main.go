package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"paycenter/internal/app"
	"paycenter/internal/domain/payment"
	"paycenter/internal/pkg/registry"
	"paycenter/pkg/database"
	"paycenter/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	infra, err := app.Setup()
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer infra.Close()
	cfg := infra.Config

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher, stopDispatcher, err := app.NewDispatcher(ctx, cfg, infra.Metrics)
	if err != nil {
		logger.Log.Fatal("Failed to init notice dispatcher", zap.Error(err))
	}
	infra.OnClose(stopDispatcher)

	// 对账任务必须使用分布式锁，与 API 实例互斥
	svc := payment.NewServices(&registry.ModuleContext{
		DB:         infra.DB,
		Redis:      infra.Redis,
		Transactor: database.NewTransactor(infra.DB),
		Locker:     app.NewLocker(cfg.Repair, infra.Redis),
		Metrics:    infra.Metrics,
		Dispatcher: dispatcher,
	})

	cronLog := logger.Named("cron")

	// 创建定时任务调度器（支持秒级调度），上一轮未结束时跳过本轮
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err = scheduler.AddFunc(cfg.Sync.Cron, func() {
		cronLog.Info("Starting reconciliation sweep")
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		report, err := svc.Sync.Sweep(runCtx)
		if err != nil {
			cronLog.Error("Reconciliation sweep failed", zap.Error(err))
			return
		}
		cronLog.Info("Reconciliation sweep finished",
			zap.Int("total", report.Total),
			zap.Int("repaired", report.Repaired),
			zap.Int("failed", report.Failed),
			zap.String("report_url", report.ReportURL),
		)
	})
	if err != nil {
		cronLog.Fatal("Failed to add sweep job", zap.String("cron", cfg.Sync.Cron), zap.Error(err))
	}

	scheduler.Start()
	cronLog.Info("Cron scheduler started", zap.String("sync", cfg.Sync.Cron))

	<-ctx.Done()
	cronLog.Info("Shutting down cron scheduler...")
	<-scheduler.Stop().Done()
	cronLog.Info("Cron scheduler exited")
}
