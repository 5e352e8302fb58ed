package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment overlay, e.g. WALLET_SERVER_PORT.
const EnvPrefix = "WALLET"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config top-level struct
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Postgres    PostgresConfig    `yaml:"postgres" envconfig:"POSTGRES"`
	Redis       RedisConfig       `yaml:"redis" envconfig:"REDIS"`
	Kafka       KafkaConfig       `yaml:"kafka" envconfig:"KAFKA"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit" envconfig:"RATELIMIT"`
	Log         LogConfig         `yaml:"log" envconfig:"LOG"`
	Ledger      LedgerConfig      `yaml:"ledger" envconfig:"LEDGER"`
	UserService UserServiceConfig `yaml:"user_service" envconfig:"USER_SERVICE"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type PostgresConfig struct {
	DSN          string `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns int    `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
}

// RedisConfig is optional: an empty Addr disables the wallet cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"ADDR"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" envconfig:"BROKERS"`
	Topic        string        `yaml:"topic" envconfig:"TOPIC"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	BatchSize    int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps" envconfig:"RPS"`
	Burst int `yaml:"burst" envconfig:"BURST"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

type LedgerConfig struct {
	Driver        string        `yaml:"driver" envconfig:"DRIVER"`
	StoreTimeout  time.Duration `yaml:"store_timeout" envconfig:"STORE_TIMEOUT"`
	LookupRetries int           `yaml:"lookup_retries" envconfig:"LOOKUP_RETRIES"`
	AccountPrefix string        `yaml:"account_prefix" envconfig:"ACCOUNT_PREFIX"`
	AutoMigrate   bool          `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
	HistoryLimit  int           `yaml:"history_limit" envconfig:"HISTORY_LIMIT"`
}

// UserServiceConfig is optional: an empty URL disables email resolution.
type UserServiceConfig struct {
	URL             string        `yaml:"url" envconfig:"URL"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Retries         int           `yaml:"retries" envconfig:"RETRIES"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout" envconfig:"IDLE_CONN_TIMEOUT"`
	AuthHeader      string        `yaml:"auth_header" envconfig:"AUTH_HEADER"`
}

// Default returns the values used for anything the yaml file leaves out.
func Default() Config {
	return Config{
		Server:    ServerConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Postgres:  PostgresConfig{MaxOpenConns: 20, MaxIdleConns: 10},
		Redis:     RedisConfig{TTL: 5 * time.Minute},
		Kafka:     KafkaConfig{Topic: "wallet.transfers", PollInterval: time.Second, BatchSize: 100},
		RateLimit: RateLimitConfig{RPS: 100, Burst: 200},
		Log:       LogConfig{Level: "info", Format: "json"},
		Ledger: LedgerConfig{
			Driver:        DriverPostgres,
			StoreTimeout:  2 * time.Second,
			LookupRetries: 3,
			AccountPrefix: "888",
			HistoryLimit:  50,
		},
		UserService: UserServiceConfig{
			Timeout:         3 * time.Second,
			Retries:         2,
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// Load reads an optional .env, the yaml file at path, then overlays
// WALLET_* environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres ledger driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.driver %q must be %q or %q", c.Ledger.Driver, DriverPostgres, DriverMemory))
	}
	if c.Ledger.StoreTimeout <= 0 {
		errs = append(errs, errors.New("ledger.store_timeout must be positive"))
	}
	if c.Ledger.LookupRetries < 0 {
		errs = append(errs, errors.New("ledger.lookup_retries must not be negative"))
	}
	if c.Ledger.AccountPrefix == "" {
		errs = append(errs, errors.New("ledger.account_prefix is required"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("ratelimit.rps and ratelimit.burst must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	if c.UserService.URL != "" && c.UserService.Timeout <= 0 {
		errs = append(errs, errors.New("user_service.timeout must be positive"))
	}
	return errors.Join(errs...)
}
