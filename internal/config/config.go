package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Relations    RelationsConfig
	Integrity    IntegrityConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how bearer tokens are verified.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NotificationConfig holds notification endpoints.
type NotificationConfig struct {
	EmailFrom             string
	WebhookURL            string
	WebhookTimeoutSeconds int
}

// Lock backends for RelationsConfig.LockBackend.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// RelationsConfig tunes relationship validation and the split/merge operations.
type RelationsConfig struct {
	DeepCycleCheck          bool
	MaxCycleDepth           int
	OperationTimeoutSeconds int
	LockBackend             string
	LockTTLSeconds          int
	LockWaitMillis          int
}

// IntegrityConfig schedules the unpaired relationship sweep. An empty schedule disables it.
type IntegrityConfig struct {
	Schedule  string
	BatchSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	lockBackend := strings.ToLower(getEnv("RELATIONS_LOCK_BACKEND", LockBackendLocal))
	if lockBackend != LockBackendLocal && lockBackend != LockBackendRedis {
		return nil, fmt.Errorf("invalid RELATIONS_LOCK_BACKEND: %q", lockBackend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-relations"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
		},
		Notification: NotificationConfig{
			EmailFrom:             getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 5),
		},
		Relations: RelationsConfig{
			DeepCycleCheck:          getEnvAsBool("RELATIONS_DEEP_CYCLE_CHECK", true),
			MaxCycleDepth:           getEnvAsInt("RELATIONS_MAX_CYCLE_DEPTH", 32),
			OperationTimeoutSeconds: getEnvAsInt("RELATIONS_OPERATION_TIMEOUT_SECONDS", 15),
			LockBackend:             lockBackend,
			LockTTLSeconds:          getEnvAsInt("RELATIONS_LOCK_TTL_SECONDS", 30),
			LockWaitMillis:          getEnvAsInt("RELATIONS_LOCK_WAIT_MILLIS", 2000),
		},
		Integrity: IntegrityConfig{
			Schedule:  getEnvAllowEmpty("INTEGRITY_SWEEP_SCHEDULE", "@every 15m"),
			BatchSize: getEnvAsInt("INTEGRITY_SWEEP_BATCH_SIZE", 100),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// OperationTimeout bounds a single split, merge or relationship mutation.
func (r RelationsConfig) OperationTimeout() time.Duration {
	if r.OperationTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.OperationTimeoutSeconds) * time.Second
}

// LockTTL is how long a ticket lock survives a crashed holder.
func (r RelationsConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLSeconds) * time.Second
}

// LockWait is how long an operation waits for a busy ticket lock.
func (r RelationsConfig) LockWait() time.Duration {
	return time.Duration(r.LockWaitMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
