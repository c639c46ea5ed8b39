package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultReconcileInterval = 24 * time.Hour
	DefaultDrainTimeout      = 30 * time.Second
	DefaultLockTTL           = 30 * time.Minute
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Email        EmailConfig        `mapstructure:"email"`
	Notification NotificationConfig `mapstructure:"notification"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	Log          LogConfig          `mapstructure:"log"`
	CORS         CORSConfig         `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type EmailConfig struct {
	Provider             string `mapstructure:"provider"` // smtp, postmark, log
	SMTPHost             string `mapstructure:"smtp_host"`
	SMTPPort             int    `mapstructure:"smtp_port"`
	Username             string `mapstructure:"username"`
	Password             string `mapstructure:"password"`
	PostmarkServerToken  string `mapstructure:"postmark_server_token"`
	PostmarkAccountToken string `mapstructure:"postmark_account_token"`
	From                 string `mapstructure:"from"`
}

type NotificationConfig struct {
	Mode      string `mapstructure:"mode"` // direct, queue
	QueueName string `mapstructure:"queue_name"`
}

type PaymentConfig struct {
	SecretKey     string            `mapstructure:"secret_key"`
	WebhookSecret string            `mapstructure:"webhook_secret"`
	Prices        map[string]string `mapstructure:"prices"` // plan -> price id
	Breaker       BreakerConfig     `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

type ReconcileConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	LockKey      string        `mapstructure:"lock_key"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	// ExpireOverdue 巡检前先将到期且不续费的订阅置为 expired，默认关闭
	ExpireOverdue bool `mapstructure:"expire_overdue"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // json, console
	Output      string `mapstructure:"output"` // stdout, stderr, file
	FilePath    string `mapstructure:"file_path"`
	Development bool   `mapstructure:"development"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load(configPath string) (*Config, error) {
	// 优先读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("email.provider", "log")
	v.SetDefault("notification.mode", "direct")
	v.SetDefault("notification.queue_name", "notifications")
	v.SetDefault("payment.breaker.max_requests", 1)
	v.SetDefault("payment.breaker.interval", time.Minute)
	v.SetDefault("payment.breaker.timeout", 30*time.Second)
	v.SetDefault("payment.breaker.failure_threshold", 5)
	v.SetDefault("reconcile.interval", DefaultReconcileInterval)
	v.SetDefault("reconcile.drain_timeout", DefaultDrainTimeout)
	v.SetDefault("reconcile.lock_key", "reconcile:lock")
	v.SetDefault("reconcile.lock_ttl", DefaultLockTTL)
	v.SetDefault("reconcile.expire_overdue", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Reconcile.Interval <= 0 {
		return errors.New("reconcile.interval must be a positive duration")
	}
	switch c.Notification.Mode {
	case "", "direct", "queue":
	default:
		return errors.New("notification.mode must be direct or queue")
	}
	return nil
}

// PriceFor 返回套餐对应的支付平台价格 ID
func (c PaymentConfig) PriceFor(plan string) (string, bool) {
	price, ok := c.Prices[plan]
	return price, ok && price != ""
}
