package database

import (
	"database/sql"
	"fmt"
	"time"

	"paycenter/internal/pkg/config"
	"paycenter/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDatabase 初始化数据库连接
func InitDatabase(cfg config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	logLevel := gormlogger.Warn
	if debug {
		logLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true, // 预编译 SQL 缓存
		DisableForeignKeyConstraintWhenMigrating: true,
		// 违反唯一约束时返回 gorm.ErrDuplicatedKey
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}

	configureConnectionPool(sqlDB)

	// 表结构由 golang-migrate 管理，见 cmd/migrate
	return db, nil
}

// configureConnectionPool 配置数据库连接池
func configureConnectionPool(sqlDB *sql.DB) {
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)                  // 推荐 SetMaxOpenConns 的 10%
	sqlDB.SetConnMaxLifetime(time.Hour)        // 1小时，避免长时间连接问题
	sqlDB.SetConnMaxIdleTime(time.Minute * 30) // 30分钟

	logger.Log.Info("Database connection pool configured",
		zap.Int("max_open", 100),
		zap.Int("max_idle", 10),
	)
}
