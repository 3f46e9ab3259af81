package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"paycenter/internal/app"
	_ "paycenter/internal/domain/allocation"
	_ "paycenter/internal/domain/common"
	_ "paycenter/internal/domain/payment"
	"paycenter/internal/pkg/middleware"
	"paycenter/internal/pkg/registry"
	"paycenter/pkg/database"
	"paycenter/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
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

	go infra.Pool.Run(ctx)

	dispatcher, stopDispatcher, err := app.NewDispatcher(ctx, cfg, infra.Metrics)
	if err != nil {
		logger.Log.Fatal("Failed to init notice dispatcher", zap.Error(err))
	}
	infra.OnClose(stopDispatcher)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(newCORS(cfg.Server.AllowOrigins))
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware(infra.Metrics))

	moduleCtx := &registry.ModuleContext{
		DB:         infra.DB,
		Redis:      infra.Redis,
		Router:     r,
		Transactor: database.NewTransactor(infra.DB),
		Locker:     app.NewLocker(cfg.Repair, infra.Redis),
		Metrics:    infra.Metrics,
		Dispatcher: dispatcher,
		Pool:       infra.Pool,
	}
	if err := registry.InitModules(moduleCtx); err != nil {
		logger.Log.Fatal("Failed to init modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Log.Info("Server exited")
}

func newCORS(origins []string) gin.HandlerFunc {
	c := cors.DefaultConfig()
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AddAllowHeaders("Authorization", "X-Trace-ID", "X-Request-ID")
	c.AddExposeHeaders("X-Trace-ID", "X-Request-ID")
	return cors.New(c)
}
