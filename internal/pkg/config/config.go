package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"paycenter/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	App      AppConfig       `mapstructure:"app"`
	Log      logger.Config   `mapstructure:"log"`
	Repair   RepairConfig    `mapstructure:"repair"`
	Notice   NoticeConfig    `mapstructure:"notice"`
	Sync     SyncConfig      `mapstructure:"sync"`
	OSS      OSSConfig       `mapstructure:"oss"`
	Push     PushConfig      `mapstructure:"push"`
	Alipay   AlipayConfig    `mapstructure:"alipay"`
	Wechat   WechatPayConfig `mapstructure:"wechat"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// 网关回调接口按 IP 限流
	NotifyQPS   float64 `mapstructure:"notify_qps"`
	NotifyBurst int     `mapstructure:"notify_burst"`
	// CORS 允许的来源，为空时允许全部
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env    string `mapstructure:"env"`
	Debug  bool   `mapstructure:"debug"`
	NodeID int64  `mapstructure:"node_id"` // 雪花 ID 节点号
}

// RepairConfig 订单修复配置
type RepairConfig struct {
	LockLease time.Duration `mapstructure:"lock_lease"`
	LockWait  time.Duration `mapstructure:"lock_wait"`
	// LockBackend: redis / local
	LockBackend string `mapstructure:"lock_backend"`
}

// NoticeConfig 客户端通知配置
type NoticeConfig struct {
	// Backend: pool / asynq
	Backend    string        `mapstructure:"backend"`
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	MaxRetry   int           `mapstructure:"max_retry"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SignType   string        `mapstructure:"sign_type"`
	SignSecret string        `mapstructure:"sign_secret"`
	Queue      string        `mapstructure:"queue"`
}

// SyncConfig 对账同步配置
type SyncConfig struct {
	Cron       string        `mapstructure:"cron"`
	PendingAge time.Duration `mapstructure:"pending_age"`
	BatchSize  int           `mapstructure:"batch_size"`
	ReportDir  string        `mapstructure:"report_dir"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

type AlipayConfig struct {
	AppID        string        `mapstructure:"app_id"`
	PrivateKey   string        `mapstructure:"private_key"`   // 应用私钥
	PublicKey    string        `mapstructure:"public_key"`    // 支付宝公钥 (不是应用公钥)
	NotifyURL    string        `mapstructure:"notify_url"`    // 异步通知地址
	IsProduction bool          `mapstructure:"is_production"` // 是否生产环境
	Timeout      time.Duration `mapstructure:"timeout"`       // 网关调用超时
}

type WechatPayConfig struct {
	AppID                string        `mapstructure:"app_id"`
	MchID                string        `mapstructure:"mch_id"`
	MchCertificateSerial string        `mapstructure:"mch_cert_serial"`
	MchPrivateKey        string        `mapstructure:"mch_private_key"`
	APIv3Key             string        `mapstructure:"apiv3_key"`
	NotifyURL            string        `mapstructure:"notify_url"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if c.Repair.LockLease <= 0 {
		return errors.New("repair.lock_lease must be positive")
	}
	if c.Repair.LockWait < 0 || c.Repair.LockWait > 200*time.Millisecond {
		return errors.New("repair.lock_wait must be within [0, 200ms]")
	}

	if c.Notice.SignSecret == "" {
		return errors.New("notice.sign_secret is required to sign client notices")
	}

	return nil
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.notify_qps", 100)
	v.SetDefault("server.notify_burst", 200)
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.node_id", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("repair.lock_lease", 10*time.Second)
	v.SetDefault("repair.lock_wait", 200*time.Millisecond)
	v.SetDefault("repair.lock_backend", "redis")
	v.SetDefault("notice.backend", "pool")
	v.SetDefault("notice.workers", 5)
	v.SetDefault("notice.queue_size", 1000)
	v.SetDefault("notice.max_retry", 3)
	v.SetDefault("notice.timeout", 5*time.Second)
	v.SetDefault("notice.sign_type", "HMAC_SHA256")
	v.SetDefault("notice.queue", "notice")
	v.SetDefault("sync.cron", "0 */5 * * * *")
	v.SetDefault("sync.pending_age", 10*time.Minute)
	v.SetDefault("sync.batch_size", 200)
	v.SetDefault("sync.report_dir", "reconcile")
	v.SetDefault("alipay.timeout", 5*time.Second)
	v.SetDefault("wechat.timeout", 5*time.Second)
}

// LoadConfig 加载配置
func LoadConfig() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量，例如 REPAIR_LOCK_WAIT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}

	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
