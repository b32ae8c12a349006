// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Miner, Output, Server, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Miner    MinerConfig    `yaml:"miner"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// MinerConfig holds the mining thresholds and variant knobs. Threshold
// validation happens in the miner, against the loaded dataset.
type MinerConfig struct {
	MinUtility     int64             `yaml:"minUtility"`
	MinSupport     int               `yaml:"minSupport"`
	MinLength      int               `yaml:"minLength"`
	MaxLength      int               `yaml:"maxLength"`
	Partitions     int               `yaml:"partitions"`
	AllowNegative  bool              `yaml:"allowNegative"`
	Mode           string            `yaml:"mode"`
	FlagGenerators bool              `yaml:"flagGenerators"`
	EUCP           bool              `yaml:"eucp"`
	LookAhead      bool              `yaml:"lookAhead"`
	Workers        int               `yaml:"workers"`
	Timeout        time.Duration     `yaml:"timeout"`
	Periodicity    PeriodicityConfig `yaml:"periodicity"`
}

// PeriodicityConfig bounds the tid gaps between consecutive occurrences of
// an itemset. Disabled unless Enabled is set.
type PeriodicityConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MinPeriodicity    int     `yaml:"minPeriodicity"`
	MaxPeriodicity    int     `yaml:"maxPeriodicity"`
	MinAvgPeriodicity float64 `yaml:"minAvgPeriodicity"`
	MaxAvgPeriodicity float64 `yaml:"maxAvgPeriodicity"`
}

// OutputConfig selects the result sinks.
type OutputConfig struct {
	Path     string `yaml:"path"`
	Postgres bool   `yaml:"postgres"`
	Kafka    bool   `yaml:"kafka"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               int           `yaml:"port"`
	ReadTimeout        time.Duration `yaml:"readTimeout"`
	WriteTimeout       time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes       int64         `yaml:"maxBodyBytes"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int           `yaml:"rateLimitBurst"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	BatchSize       int           `yaml:"batchSize"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	TransactionBatches string `yaml:"transactionBatches"`
	MiningResults      string `yaml:"miningResults"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging around the mining phases.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Miner: MinerConfig{
			Mode:      "all",
			EUCP:      true,
			LookAhead: true,
			Workers:   1,
			Timeout:   5 * time.Minute,
		},
		Output: OutputConfig{
			Path: "output.txt",
		},
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       5 * time.Minute,
			ShutdownTimeout:    15 * time.Second,
			MaxBodyBytes:       32 << 20,
			RateLimitPerMinute: 60,
			RateLimitBurst:     10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "utilitymining",
			User:            "utilitymining",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			BatchSize:       500,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "utilitymining-group",
			Topics: KafkaTopics{
				TransactionBatches: "transaction-batches",
				MiningResults:      "mining-results",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads HUIM_* environment variables and overrides the
// corresponding config fields. A numeric variable that does not parse is
// rejected rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HUIM_MIN_UTILITY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apperrors.Invalidf("HUIM_MIN_UTILITY: %q is not an integer", v)
		}
		cfg.Miner.MinUtility = n
	}
	if v := os.Getenv("HUIM_MODE"); v != "" {
		cfg.Miner.Mode = v
	}
	if v := os.Getenv("HUIM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Invalidf("HUIM_WORKERS: %q is not an integer", v)
		}
		cfg.Miner.Workers = n
	}
	if v := os.Getenv("HUIM_OUTPUT_PATH"); v != "" {
		cfg.Output.Path = v
	}
	if v := os.Getenv("HUIM_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Invalidf("HUIM_SERVER_PORT: %q is not a port number", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("HUIM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("HUIM_POSTGRES_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Invalidf("HUIM_POSTGRES_PORT: %q is not a port number", v)
		}
		cfg.Postgres.Port = port
	}
	if v := os.Getenv("HUIM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("HUIM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("HUIM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("HUIM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HUIM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HUIM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("HUIM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HUIM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}
