package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"paycenter/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PoolMonitorConfig 连接池监控配置
type PoolMonitorConfig struct {
	MonitorInterval time.Duration
	// AlertInUseRatio 使用中连接占最大连接数的告警比例
	AlertInUseRatio float64
	// AlertWait 两次采样间新增等待时长超过该值时告警
	AlertWait time.Duration
}

// PoolSnapshot 连接池快照
type PoolSnapshot struct {
	Timestamp       time.Time     `json:"timestamp"`
	MaxOpen         int           `json:"max_open"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration"`
}

// PoolMonitor 定时采样连接池状态，供健康检查读取
type PoolMonitor struct {
	sqlDB  *sql.DB
	config PoolMonitorConfig
	log    *zap.Logger

	mu   sync.RWMutex
	last PoolSnapshot
}

func NewPoolMonitor(db *gorm.DB, config PoolMonitorConfig) (*PoolMonitor, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = 30 * time.Second
	}
	if config.AlertInUseRatio <= 0 {
		config.AlertInUseRatio = 0.8
	}
	if config.AlertWait <= 0 {
		config.AlertWait = 5 * time.Second
	}

	pm := &PoolMonitor{sqlDB: sqlDB, config: config, log: logger.Named("db_pool")}
	pm.Collect()
	return pm, nil
}

// Register 将 database/sql 的标准连接池指标注册到 Prometheus
func (pm *PoolMonitor) Register(reg prometheus.Registerer, dbName string) error {
	return reg.Register(collectors.NewDBStatsCollector(pm.sqlDB, dbName))
}

// Run 阻塞采样直到 ctx 取消
func (pm *PoolMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.Collect()
		case <-ctx.Done():
			return
		}
	}
}

// Collect 采样一次并检查告警条件
func (pm *PoolMonitor) Collect() PoolSnapshot {
	stats := pm.sqlDB.Stats()
	snapshot := PoolSnapshot{
		Timestamp:       time.Now(),
		MaxOpen:         stats.MaxOpenConnections,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
	}

	pm.mu.Lock()
	prev := pm.last
	pm.last = snapshot
	pm.mu.Unlock()

	if snapshot.MaxOpen > 0 &&
		float64(snapshot.InUse) >= float64(snapshot.MaxOpen)*pm.config.AlertInUseRatio {
		pm.log.Warn("Connection pool nearly exhausted",
			zap.Int("in_use", snapshot.InUse),
			zap.Int("max_open", snapshot.MaxOpen),
		)
	}
	if !prev.Timestamp.IsZero() && snapshot.WaitDuration-prev.WaitDuration > pm.config.AlertWait {
		pm.log.Warn("Connection pool wait time increased",
			zap.Duration("wait", snapshot.WaitDuration-prev.WaitDuration),
			zap.Int64("wait_count", snapshot.WaitCount-prev.WaitCount),
		)
	}
	return snapshot
}

// Last 最近一次采样结果
func (pm *PoolMonitor) Last() PoolSnapshot {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.last
}

// Ping 检查数据库连通性
func (pm *PoolMonitor) Ping(ctx context.Context) error {
	return pm.sqlDB.PingContext(ctx)
}
