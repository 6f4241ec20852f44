package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Reconcile ReconcileConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the position cache. An empty Addr disables it.
type RedisConfig struct {
	Addr           string
	PoolSize       int           `mapstructure:"pool_size"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ReconcileConfig schedules background reconciliation. A zero Interval
// disables it; without AutoRepair drift is only reported.
type ReconcileConfig struct {
	Interval   time.Duration
	AutoRepair bool `mapstructure:"auto_repair"`
}

type LogConfig struct {
	Level  string
	Format string
}

const envPrefix = "LEDGER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "ledger.db")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.cache_ttl", 10*time.Minute)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("reconcile.interval", time.Duration(0))
	v.SetDefault("reconcile.auto_repair", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from path, when given, and from LEDGER_*
// environment variables, which take precedence. LEDGER_DATABASE_DSN sets
// database.dsn.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database.dsn is required")
	}
	if c.Reconcile.Interval < 0 {
		return errors.New("config: reconcile.interval must not be negative")
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return errors.New("config: at least one of server.http_addr and server.grpc_addr is required")
	}
	return nil
}
