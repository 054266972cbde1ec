package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Lock backends for the ticket number lock.
const (
	LockBackendRedis  = "redis"
	LockBackendMemory = "memory"
)

var initialStatuses = map[string]struct{}{
	"new":         {},
	"open":        {},
	"in_progress": {},
}

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Sequence     SequenceConfig
	Ticket       TicketConfig
	SLA          SLAConfig
	Notification NotificationConfig
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

// AuthConfig defines how actor tokens are verified.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// SequenceConfig tunes the ticket number lock.
type SequenceConfig struct {
	LockBackend string
	LockTimeout time.Duration
	LockTTL     time.Duration
	KeyPrefix   string
}

// TicketConfig holds tenant ticket defaults.
type TicketConfig struct {
	InitialStatus   string
	DefaultPriority string
}

// SLAConfig configures the breach sweeper.
type SLAConfig struct {
	SweepEnabled  bool
	SweepSchedule string
	Timezone      string
	SweepBatch    int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
	QueueSize  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
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
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Sequence: SequenceConfig{
			LockBackend: strings.ToLower(getEnv("SEQUENCE_LOCK_BACKEND", LockBackendRedis)),
			LockTimeout: getEnvAsDuration("SEQUENCE_LOCK_TIMEOUT", 5*time.Second),
			LockTTL:     getEnvAsDuration("SEQUENCE_LOCK_TTL", 30*time.Second),
			KeyPrefix:   getEnv("SEQUENCE_LOCK_KEY_PREFIX", "ticket-number:"),
		},
		Ticket: TicketConfig{
			InitialStatus:   getEnv("TICKET_INITIAL_STATUS", "new"),
			DefaultPriority: getEnv("TICKET_DEFAULT_PRIORITY", "normal"),
		},
		SLA: SLAConfig{
			SweepEnabled:  getEnvAsBool("SLA_SWEEP_ENABLED", true),
			SweepSchedule: getEnv("SLA_SWEEP_SCHEDULE", "*/5 * * * *"),
			Timezone:      getEnv("SLA_TIMEZONE", "UTC"),
			SweepBatch:    getEnvAsInt("SLA_SWEEP_BATCH", 200),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			QueueSize:  getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := initialStatuses[c.Ticket.InitialStatus]; !ok {
		errs = append(errs, fmt.Errorf("TICKET_INITIAL_STATUS %q is not an initial status", c.Ticket.InitialStatus))
	}
	if strings.TrimSpace(c.Ticket.DefaultPriority) == "" {
		errs = append(errs, errors.New("TICKET_DEFAULT_PRIORITY must not be empty"))
	}
	if c.Sequence.LockTimeout <= 0 {
		errs = append(errs, errors.New("SEQUENCE_LOCK_TIMEOUT must be positive"))
	}
	if c.Sequence.LockTTL < c.Sequence.LockTimeout {
		errs = append(errs, errors.New("SEQUENCE_LOCK_TTL must not be shorter than SEQUENCE_LOCK_TIMEOUT"))
	}
	switch c.Sequence.LockBackend {
	case LockBackendRedis, LockBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("SEQUENCE_LOCK_BACKEND %q is not supported", c.Sequence.LockBackend))
	}
	if _, err := cron.ParseStandard(c.SLA.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("SLA_SWEEP_SCHEDULE: %w", err))
	}
	if _, err := time.LoadLocation(c.SLA.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("SLA_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
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

// Location returns the SLA sweeper time zone, UTC when unset.
func (s SLAConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
