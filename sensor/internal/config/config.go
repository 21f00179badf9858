package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Record store backends.
const (
	DatabasePostgres   = "postgres"
	DatabaseOpenSearch = "opensearch"
	DatabaseMemory     = "memory"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Query     QueryConfig     `mapstructure:"query"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Type           string           `mapstructure:"type"`
	Postgres       PostgresConfig   `mapstructure:"postgres"`
	OpenSearch     OpenSearchConfig `mapstructure:"opensearch"`
	MigrationsPath string           `mapstructure:"migrations_path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString renders a postgres:// URL usable by both pgx and migrate.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}
	return u.String()
}

type OpenSearchConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	IndexPrefix   string `mapstructure:"index_prefix"`
	ShardCount    int    `mapstructure:"shard_count"`
	ReplicaCount  int    `mapstructure:"replica_count"`
	Refresh       string `mapstructure:"refresh"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Token         string        `mapstructure:"token"`
	Stream        string        `mapstructure:"stream"`
	Consumer      string        `mapstructure:"consumer"`
	Subject       string        `mapstructure:"subject"`
	AckWait       time.Duration `mapstructure:"ack_wait"`
	MaxDeliver    int           `mapstructure:"max_deliver"`
	MaxAckPending int           `mapstructure:"max_ack_pending"`
	NakDelay      time.Duration `mapstructure:"nak_delay"`
	DLQEnabled    bool          `mapstructure:"dlq_enabled"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type IngestionConfig struct {
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type QueryConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.type", DatabasePostgres)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "sensor")
	v.SetDefault("database.postgres.user", "sensor")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "require")
	v.SetDefault("database.opensearch.url", "https://localhost:9200")
	v.SetDefault("database.opensearch.username", "admin")
	v.SetDefault("database.opensearch.password", "admin")
	v.SetDefault("database.opensearch.tls_skip_verify", true)
	v.SetDefault("database.opensearch.index_prefix", "sensor-records")
	v.SetDefault("database.opensearch.shard_count", 1)
	v.SetDefault("database.opensearch.replica_count", 0)
	v.SetDefault("database.opensearch.refresh", "wait_for")
	v.SetDefault("database.migrations_path", "file://migrations")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.stream", "SENSOR_TELEMETRY")
	v.SetDefault("nats.consumer", "sensor-ingest")
	v.SetDefault("nats.subject", "sensor.telemetry.proximity")
	v.SetDefault("nats.ack_wait", "30s")
	v.SetDefault("nats.max_deliver", 5)
	v.SetDefault("nats.max_ack_pending", 256)
	v.SetDefault("nats.nak_delay", "5s")
	v.SetDefault("nats.dlq_enabled", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("ingestion.max_body_bytes", 1048576)
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 6000)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("query.default_page_size", 20)
	v.SetDefault("query.max_page_size", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/sensor")
	}

	// Environment variables override (SENSOR_SERVER_PORT, etc.)
	v.SetEnvPrefix("SENSOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case DatabasePostgres, DatabaseOpenSearch, DatabaseMemory:
	default:
		return fmt.Errorf("invalid database.type %q: must be postgres, opensearch or memory", c.Database.Type)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Query.DefaultPageSize < 1 {
		return fmt.Errorf("query.default_page_size must be at least 1")
	}
	if c.Query.MaxPageSize > 0 && c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return fmt.Errorf("query.max_page_size (%d) is below query.default_page_size (%d)", c.Query.MaxPageSize, c.Query.DefaultPageSize)
	}
	if c.Ingestion.MaxBodyBytes < 1 {
		return fmt.Errorf("ingestion.max_body_bytes must be positive")
	}
	if c.Ingestion.RateLimitEnabled && !c.Redis.Enabled {
		return fmt.Errorf("ingestion.rate_limit_enabled requires redis.enabled")
	}
	if c.NATS.MaxDeliver < 1 {
		return fmt.Errorf("nats.max_deliver must be at least 1")
	}
	return nil
}
