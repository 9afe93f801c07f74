package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// LedgerConfig tunes the transfer engine. Money bounds are strings so they
// parse into exact decimals, never floats.
type LedgerConfig struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout"` // per-transaction row lock wait
	LockRetries int           `mapstructure:"lock_retries"` // bounded retries on lock timeout
	TopupMin    string        `mapstructure:"topup_min"`
	TopupMax    string        `mapstructure:"topup_max"`
	MaxAmount   string        `mapstructure:"max_amount"` // global single-operation cap
}

func (l LedgerConfig) TopupMinAmount() decimal.Decimal {
	return decimal.RequireFromString(l.TopupMin)
}

func (l LedgerConfig) TopupMaxAmount() decimal.Decimal {
	return decimal.RequireFromString(l.TopupMax)
}

func (l LedgerConfig) MaxOperationAmount() decimal.Decimal {
	return decimal.RequireFromString(l.MaxAmount)
}

type SchedulerConfig struct {
	HorizonDays  int           `mapstructure:"horizon_days"`  // how far ahead obligations materialize
	SyncInterval time.Duration `mapstructure:"sync_interval"` // 0 disables the background ticker
}

type NotifierConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"` // empty: log-only notifier
	Secret     string        `mapstructure:"secret"`      // HMAC signing key for webhook payloads
	Timeout    time.Duration `mapstructure:"timeout"`
}

type CatalogConfig struct {
	File string `mapstructure:"file"` // JSON listings file; empty: empty catalog
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PAYSAFE.
// Nested keys use underscore: PAYSAFE_DATABASE_HOST, PAYSAFE_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "paysafe")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "paysafe")
	v.SetDefault("ledger.lock_timeout", "3s")
	v.SetDefault("ledger.lock_retries", 3)
	v.SetDefault("ledger.topup_min", "5")
	v.SetDefault("ledger.topup_max", "10000")
	v.SetDefault("ledger.max_amount", "1000000")
	v.SetDefault("scheduler.horizon_days", 31)
	v.SetDefault("scheduler.sync_interval", "0")
	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.secret", "")
	v.SetDefault("notifier.timeout", "5s")
	v.SetDefault("catalog.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PAYSAFE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PAYSAFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required -- env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
