package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: GOLDPAY_SERVER_PORT=9090.
const EnvPrefix = "GOLDPAY"

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Business  BusinessConfig  `mapstructure:"business"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"` // gin mode: debug, release, test
	WorkerID int64  `mapstructure:"worker_id"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	GroupID string           `mapstructure:"group_id"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	TransferCompleted       string `mapstructure:"transfer_completed"`
	ReconciliationCompleted string `mapstructure:"reconciliation_completed"`
	BankFeed                string `mapstructure:"bank_feed"`
}

type LedgerConfig struct {
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
	LockRetryInterval time.Duration `mapstructure:"lock_retry_interval"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	MaxRetries        int           `mapstructure:"max_retries"`
	DistributedLock   bool          `mapstructure:"distributed_lock"`
}

type ReconcileConfig struct {
	AmountTolerance    string        `mapstructure:"amount_tolerance"`
	DateWindow         time.Duration `mapstructure:"date_window"`
	AutoMatchThreshold float64       `mapstructure:"auto_match_threshold"`
	Weights            WeightsConfig `mapstructure:"weights"`
	Interval           time.Duration `mapstructure:"interval"`
	Concurrency        int           `mapstructure:"concurrency"`
	ReviewGrace        time.Duration `mapstructure:"review_grace"`
}

type WeightsConfig struct {
	Amount      float64 `mapstructure:"amount"`
	Date        float64 `mapstructure:"date"`
	Institution float64 `mapstructure:"institution"`
}

type BusinessConfig struct {
	SettlementDelay time.Duration `mapstructure:"settlement_delay"`
	SignupBonus     string        `mapstructure:"signup_bonus"`
	Currency        string        `mapstructure:"currency"`
	MaxRetryCount   int           `mapstructure:"max_retry_count"`
	OutboxInterval  time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize int           `mapstructure:"outbox_batch_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.redis_prefix", "goldpay:collection:")
	v.SetDefault("store.max_retries", 10)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "goldpay")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "goldpay")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.group_id", "goldpay-ledger")
	v.SetDefault("kafka.topic.transfer_completed", "transfer_completed")
	v.SetDefault("kafka.topic.reconciliation_completed", "reconciliation_completed")
	v.SetDefault("kafka.topic.bank_feed", "bank_feed")

	v.SetDefault("ledger.lock_timeout", 3*time.Second)
	v.SetDefault("ledger.lock_retry_interval", 20*time.Millisecond)
	v.SetDefault("ledger.lock_ttl", 30*time.Second)
	v.SetDefault("ledger.max_retries", 10)
	v.SetDefault("ledger.distributed_lock", false)

	v.SetDefault("reconcile.amount_tolerance", "0")
	v.SetDefault("reconcile.date_window", 72*time.Hour)
	v.SetDefault("reconcile.auto_match_threshold", 90.0)
	v.SetDefault("reconcile.weights.amount", 0.6)
	v.SetDefault("reconcile.weights.date", 0.2)
	v.SetDefault("reconcile.weights.institution", 0.2)
	v.SetDefault("reconcile.interval", time.Minute)
	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("reconcile.review_grace", time.Duration(0))

	v.SetDefault("business.settlement_delay", 5*time.Minute)
	v.SetDefault("business.signup_bonus", "100000")
	v.SetDefault("business.currency", "MXN")
	v.SetDefault("business.max_retry_count", 3)
	v.SetDefault("business.outbox_interval", 100*time.Millisecond)
	v.SetDefault("business.outbox_batch_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return cfg
}

// Load reads configuration in increasing priority: defaults, the yaml file at
// path (skipped when path is empty), then GOLDPAY_* environment variables.
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreMySQL, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if _, err := c.Reconcile.Tolerance(); err != nil {
		return err
	}
	if _, err := c.Business.SignupBonusAmount(); err != nil {
		return err
	}
	if c.Reconcile.AutoMatchThreshold < 0 || c.Reconcile.AutoMatchThreshold > 100 {
		return fmt.Errorf("config: reconcile.auto_match_threshold must be within 0-100, got %v", c.Reconcile.AutoMatchThreshold)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka.enabled requires kafka.brokers")
	}
	return nil
}

// Tolerance parses amount_tolerance.
func (c ReconcileConfig) Tolerance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.AmountTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: reconcile.amount_tolerance: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: reconcile.amount_tolerance must not be negative")
	}
	return d, nil
}

// SignupBonusAmount parses signup_bonus.
func (c BusinessConfig) SignupBonusAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.SignupBonus)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: business.signup_bonus: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: business.signup_bonus must not be negative")
	}
	return d, nil
}
