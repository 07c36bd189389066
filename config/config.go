package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Logger     LoggerConfig
	Catalog    PostgresConfig
	TenantPool TenantPoolConfig
	Stock      StockConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Tracing    TracingConfig
}

type ServerConfig struct {
	AppEnv   string
	GRPCPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

// PostgresConfig describes the shared tenant catalog database.
type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// TenantPoolConfig bounds every per-tenant connection pool the router opens.
type TenantPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
	IdleTimeout     int // seconds a pool may stay unused before eviction
	OpenAttempts    int
	OpenBackoffMS   int
	OpenTimeout     int
	ProvisionTTL    int
}

type StockConfig struct {
	TxTimeoutMS int
}

type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	TenantTTL int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type TracingConfig struct {
	Endpoint string
	Insecure bool
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			GRPCPort: getEnv("GRPC_PORT", ":8083"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Catalog: PostgresConfig{
			Host:            getEnv("CATALOG_HOST", "localhost"),
			Port:            getEnv("CATALOG_PORT", "5433"),
			User:            getEnv("CATALOG_USER", "omnipos"),
			Password:        getEnv("CATALOG_PASSWORD", "omnipos"),
			DBName:          getEnv("CATALOG_DB", "omnipos_catalog"),
			SSLMode:         getEnv("CATALOG_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("CATALOG_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    getEnvInt("CATALOG_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvInt("CATALOG_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("CATALOG_CONN_MAX_IDLE_TIME", 60),
		},
		TenantPool: TenantPoolConfig{
			MaxOpenConns:    getEnvInt("TENANT_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("TENANT_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("TENANT_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("TENANT_CONN_MAX_IDLE_TIME", 60),
			IdleTimeout:     getEnvInt("TENANT_POOL_IDLE_TIMEOUT", 900),
			OpenAttempts:    getEnvInt("TENANT_OPEN_ATTEMPTS", 3),
			OpenBackoffMS:   getEnvInt("TENANT_OPEN_BACKOFF_MS", 100),
			OpenTimeout:     getEnvInt("TENANT_OPEN_TIMEOUT", 10),
			ProvisionTTL:    getEnvInt("TENANT_PROVISION_TTL", 600),
		},
		Stock: StockConfig{
			TxTimeoutMS: getEnvInt("STOCK_TX_TIMEOUT_MS", 5000),
		},
		Redis: RedisConfig{
			Enabled:   getEnvBool("REDIS_ENABLED", true),
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			TenantTTL: getEnvInt("REDIS_TENANT_TTL", 30),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC_SALES", "pos.sales"),
			GroupID: getEnv("KAFKA_GROUP_STOCK", "stock"),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("OTEL_ENDPOINT", ""),
			Insecure: getEnvBool("OTEL_INSECURE", true),
		},
	}
}

// Validate rejects settings the router or coordinator cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.TenantPool.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("TENANT_MAX_OPEN_CONNS must be positive"))
	}
	if c.TenantPool.MaxIdleConns > c.TenantPool.MaxOpenConns {
		errs = append(errs, errors.New("TENANT_MAX_IDLE_CONNS cannot exceed TENANT_MAX_OPEN_CONNS"))
	}
	if c.TenantPool.OpenAttempts <= 0 {
		errs = append(errs, errors.New("TENANT_OPEN_ATTEMPTS must be positive"))
	}
	if c.Stock.TxTimeoutMS <= 0 {
		errs = append(errs, errors.New("STOCK_TX_TIMEOUT_MS must be positive"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS cannot be empty when kafka is enabled"))
	}
	return errors.Join(errs...)
}

func (c TenantPoolConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

func (c TenantPoolConfig) ConnIdleTime() time.Duration {
	return time.Duration(c.ConnMaxIdleTime) * time.Second
}

func (c StockConfig) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
