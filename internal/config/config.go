package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Shopify  ShopifyConfig  `mapstructure:"shopify"`
	Bulk     BulkConfig     `mapstructure:"bulk"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Log      LogConfig      `mapstructure:"log"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin 模式: debug / release / test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// 手动触发同步的最小间隔（按店铺）
	ManualSyncInterval time.Duration `mapstructure:"manual_sync_interval"`
}

// DatabaseConfig 数据库
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	FutureMonths    int           `mapstructure:"future_months"`
}

// RedisConfig Webhook 投递去重
// Addr 为空时使用进程内存去重（重启后失效）
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KafkaConfig 合规计算分发
// Brokers 为空时只记录日志，不分发
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ShopifyConfig Admin API
type ShopifyConfig struct {
	APIVersion        string        `mapstructure:"api_version"`
	APISecret         string        `mapstructure:"api_secret"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Debug             bool          `mapstructure:"debug"`
}

// BulkConfig 对账引擎
type BulkConfig struct {
	ChunkSize          int           `mapstructure:"chunk_size"`
	RunTimeout         time.Duration `mapstructure:"run_timeout"`
	ComputeConcurrency int           `mapstructure:"compute_concurrency"`
	DefaultCurrency    string        `mapstructure:"default_currency"`
	DefaultTimeframe   int           `mapstructure:"default_timeframe"`
}

// WebhookConfig 投递去重
type WebhookConfig struct {
	DeliveryTTL  time.Duration `mapstructure:"delivery_ttl"`
	VerifyHMAC   bool          `mapstructure:"verify_hmac"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// TasksConfig 定时任务（cron 表达式，支持秒）
type TasksConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectionSync    string `mapstructure:"collection_sync"`
	GatePrune         string `mapstructure:"gate_prune"`
	PartitionMaintain string `mapstructure:"partition_maintain"`
	MaxConcurrency    int    `mapstructure:"max_concurrency"`
}

// setDefaults 默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.manual_sync_interval", 5*time.Minute)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=omnibus port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.future_months", 3)

	v.SetDefault("redis.key_prefix", "omnibus:webhook:")

	v.SetDefault("kafka.topic", "omnibus.compliance.compute")

	v.SetDefault("shopify.api_version", "2025-07")
	v.SetDefault("shopify.timeout", 20*time.Second)
	v.SetDefault("shopify.requests_per_second", 2.0)
	v.SetDefault("shopify.burst", 4)

	v.SetDefault("bulk.chunk_size", 64*1024)
	v.SetDefault("bulk.run_timeout", 2*time.Hour)
	v.SetDefault("bulk.compute_concurrency", 4)
	v.SetDefault("bulk.default_currency", "USD")
	v.SetDefault("bulk.default_timeframe", 30)

	v.SetDefault("webhook.delivery_ttl", 72*time.Hour)
	v.SetDefault("webhook.verify_hmac", true)
	v.SetDefault("webhook.max_body_bytes", 5<<20)

	v.SetDefault("log.level", "info")

	v.SetDefault("tasks.enabled", true)
	v.SetDefault("tasks.collection_sync", "0 30 3 * * *")
	v.SetDefault("tasks.gate_prune", "0 */10 * * * *")
	v.SetDefault("tasks.partition_maintain", "0 0 2 * * *")
	v.SetDefault("tasks.max_concurrency", 3)
}

// Load 加载配置
// 优先级: 环境变量 (OMNIBUS_ 前缀，"." 换成 "_") > 配置文件 > 默认值
// path 为空时在 . 和 ./config 下查找 config.yaml，找不到不报错
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OMNIBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 基本校验
func (c *Config) Validate() error {
	if c.Bulk.ChunkSize <= 0 {
		return fmt.Errorf("bulk.chunk_size 必须大于 0")
	}
	if c.Bulk.ComputeConcurrency <= 0 {
		return fmt.Errorf("bulk.compute_concurrency 必须大于 0")
	}
	if c.Webhook.VerifyHMAC && c.Shopify.APISecret == "" {
		return fmt.Errorf("开启 webhook.verify_hmac 时必须配置 shopify.api_secret")
	}
	return nil
}
