// Package config loads engine configuration from environment variables.
// Every value has a default so a bare environment starts a development
// instance with in-memory backends.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "corpdesk/pkg/platform/strings"
)

// Backend names shared by rate limiting and reminder dedup.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the root configuration.
type Config struct {
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`

	Server    Server          `json:"server"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Email     EmailConfig     `json:"email"`
	Audit     AuditConfig     `json:"audit"`
	Reminder  ReminderConfig  `json:"reminder"`
	Redis     RedisConfig     `json:"redis"`
	Postgres  PostgresConfig  `json:"postgres"`
	Kafka     KafkaConfig     `json:"kafka"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `json:"addr"`
	AdminJWTSecret  string        `json:"-"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type RateLimitConfig struct {
	Backend       string        `json:"backend"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

type EmailConfig struct {
	SMTPHost     string        `json:"smtp_host"`
	SMTPPort     int           `json:"smtp_port"`
	SMTPUser     string        `json:"smtp_user"`
	SMTPPassword string        `json:"-"`
	From         string        `json:"from"`
	Capacity     int           `json:"capacity"`
	JobTTL       time.Duration `json:"job_ttl"`
	TickInterval time.Duration `json:"tick_interval"`
	MinInterval  time.Duration `json:"min_interval"`
	MaxRetries   int           `json:"max_retries"`
}

type AuditConfig struct {
	Capacity       int  `json:"capacity"`
	MirrorPostgres bool `json:"mirror_postgres"`
	MirrorBuffer   int  `json:"mirror_buffer"`
}

type ReminderConfig struct {
	TickInterval time.Duration `json:"tick_interval"`
	InitialDelay time.Duration `json:"initial_delay"`
	LeadTime     time.Duration `json:"lead_time"`
	HalfWidth    time.Duration `json:"half_width"`
	DedupWindow  time.Duration `json:"dedup_window"`
	DedupBackend string        `json:"dedup_backend"`
	StoreBackend string        `json:"store_backend"`
}

// RedisConfig holds connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `json:"-"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// PostgresConfig holds connection settings. An empty DSN disables Postgres.
type PostgresConfig struct {
	DSN             string        `json:"-"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// KafkaConfig enables reminder event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		Server: Server{
			Addr:            ":8080",
			AdminJWTSecret:  "dev-secret-key-change-in-production",
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend:       BackendMemory,
			SweepInterval: 5 * time.Minute,
		},
		Email: EmailConfig{
			SMTPPort:     587,
			From:         "no-reply@corpdesk.local",
			Capacity:     100,
			JobTTL:       time.Hour,
			TickInterval: 2 * time.Second,
			MinInterval:  time.Second,
			MaxRetries:   3,
		},
		Audit: AuditConfig{
			Capacity:     10000,
			MirrorBuffer: 1000,
		},
		Reminder: ReminderConfig{
			TickInterval: time.Hour,
			InitialDelay: 10 * time.Second,
			LeadTime:     60 * 24 * time.Hour,
			HalfWidth:    5 * 24 * time.Hour,
			DedupWindow:  30 * 24 * time.Hour,
			DedupBackend: BackendMemory,
			StoreBackend: BackendMemory,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "corpdesk.reminders",
		},
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
// Malformed values are reported together rather than silently defaulted.
func FromEnv() (Config, error) {
	cfg := Default()
	p := &parser{}

	cfg.Environment = p.str("CORPDESK_ENV", cfg.Environment)
	cfg.LogLevel = p.str("LOG_LEVEL", cfg.LogLevel)

	cfg.Server.Addr = p.str("HTTP_ADDR", cfg.Server.Addr)
	cfg.Server.AdminJWTSecret = p.str("ADMIN_JWT_SECRET", cfg.Server.AdminJWTSecret)
	cfg.Server.ShutdownTimeout = p.duration("HTTP_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.RateLimit.Backend = p.str("RATELIMIT_BACKEND", cfg.RateLimit.Backend)
	cfg.RateLimit.SweepInterval = p.duration("RATELIMIT_SWEEP_INTERVAL", cfg.RateLimit.SweepInterval)

	cfg.Email.SMTPHost = p.str("SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPPort = p.integer("SMTP_PORT", cfg.Email.SMTPPort)
	cfg.Email.SMTPUser = p.str("SMTP_USER", cfg.Email.SMTPUser)
	cfg.Email.SMTPPassword = p.str("SMTP_PASSWORD", cfg.Email.SMTPPassword)
	cfg.Email.From = p.str("EMAIL_FROM", cfg.Email.From)
	cfg.Email.Capacity = p.integer("EMAIL_QUEUE_CAPACITY", cfg.Email.Capacity)
	cfg.Email.JobTTL = p.duration("EMAIL_JOB_TTL", cfg.Email.JobTTL)
	cfg.Email.TickInterval = p.duration("EMAIL_TICK_INTERVAL", cfg.Email.TickInterval)
	cfg.Email.MinInterval = p.duration("EMAIL_MIN_INTERVAL", cfg.Email.MinInterval)
	cfg.Email.MaxRetries = p.integer("EMAIL_MAX_RETRIES", cfg.Email.MaxRetries)

	cfg.Audit.Capacity = p.integer("AUDIT_CAPACITY", cfg.Audit.Capacity)
	cfg.Audit.MirrorPostgres = p.boolean("AUDIT_MIRROR_POSTGRES", cfg.Audit.MirrorPostgres)
	cfg.Audit.MirrorBuffer = p.integer("AUDIT_MIRROR_BUFFER", cfg.Audit.MirrorBuffer)

	cfg.Reminder.TickInterval = p.duration("REMINDER_TICK_INTERVAL", cfg.Reminder.TickInterval)
	cfg.Reminder.InitialDelay = p.duration("REMINDER_INITIAL_DELAY", cfg.Reminder.InitialDelay)
	cfg.Reminder.LeadTime = p.duration("REMINDER_LEAD_TIME", cfg.Reminder.LeadTime)
	cfg.Reminder.HalfWidth = p.duration("REMINDER_HALF_WIDTH", cfg.Reminder.HalfWidth)
	cfg.Reminder.DedupWindow = p.duration("REMINDER_DEDUP_WINDOW", cfg.Reminder.DedupWindow)
	cfg.Reminder.StoreBackend = p.str("REMINDER_STORE_BACKEND", cfg.Reminder.StoreBackend)
	// Claims follow the notification store unless set explicitly.
	dedupDefault := cfg.Reminder.DedupBackend
	if cfg.Reminder.StoreBackend != BackendMemory {
		dedupDefault = cfg.Reminder.StoreBackend
	}
	cfg.Reminder.DedupBackend = p.str("REMINDER_DEDUP_BACKEND", dedupDefault)

	cfg.Redis.URL = p.str("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.PoolSize = p.integer("REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.MinIdleConns = p.integer("REDIS_MIN_IDLE_CONNS", cfg.Redis.MinIdleConns)
	cfg.Redis.DialTimeout = p.duration("REDIS_DIAL_TIMEOUT", cfg.Redis.DialTimeout)
	cfg.Redis.ReadTimeout = p.duration("REDIS_READ_TIMEOUT", cfg.Redis.ReadTimeout)
	cfg.Redis.WriteTimeout = p.duration("REDIS_WRITE_TIMEOUT", cfg.Redis.WriteTimeout)

	cfg.Postgres.DSN = p.str("DATABASE_URL", cfg.Postgres.DSN)
	cfg.Postgres.MaxOpenConns = p.integer("DB_MAX_OPEN_CONNS", cfg.Postgres.MaxOpenConns)
	cfg.Postgres.MaxIdleConns = p.integer("DB_MAX_IDLE_CONNS", cfg.Postgres.MaxIdleConns)
	cfg.Postgres.ConnMaxLifetime = p.duration("DB_CONN_MAX_LIFETIME", cfg.Postgres.ConnMaxLifetime)

	cfg.Kafka.Brokers = p.list("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = p.str("KAFKA_REMINDER_TOPIC", cfg.Kafka.Topic)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints after loading.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr is required"))
	}
	if c.Server.AdminJWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET is required"))
	}
	if c.Environment == "production" && c.Server.AdminJWTSecret == Default().Server.AdminJWTSecret {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET must be overridden in production"))
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, errors.New("RATELIMIT_SWEEP_INTERVAL must be positive"))
	}
	if c.Email.Capacity <= 0 {
		errs = append(errs, errors.New("EMAIL_QUEUE_CAPACITY must be positive"))
	}
	if c.Email.MaxRetries <= 0 {
		errs = append(errs, errors.New("EMAIL_MAX_RETRIES must be positive"))
	}
	if c.Email.TickInterval <= 0 || c.Email.JobTTL <= 0 {
		errs = append(errs, errors.New("email tick interval and job TTL must be positive"))
	}
	if c.Audit.Capacity <= 0 {
		errs = append(errs, errors.New("AUDIT_CAPACITY must be positive"))
	}
	if c.Audit.MirrorPostgres && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("AUDIT_MIRROR_POSTGRES requires DATABASE_URL"))
	}
	if c.Reminder.TickInterval <= 0 {
		errs = append(errs, errors.New("REMINDER_TICK_INTERVAL must be positive"))
	}
	if c.Reminder.HalfWidth < 0 || c.Reminder.HalfWidth >= c.Reminder.LeadTime {
		errs = append(errs, errors.New("REMINDER_HALF_WIDTH must be non-negative and below REMINDER_LEAD_TIME"))
	}
	errs = append(errs, c.checkBackend("RATELIMIT_BACKEND", c.RateLimit.Backend, BackendMemory, BackendRedis))
	errs = append(errs, c.checkBackend("REMINDER_DEDUP_BACKEND", c.Reminder.DedupBackend, BackendMemory, BackendRedis, BackendPostgres))
	errs = append(errs, c.checkBackend("REMINDER_STORE_BACKEND", c.Reminder.StoreBackend, BackendMemory, BackendPostgres))
	if c.Reminder.StoreBackend != BackendMemory && c.Reminder.DedupBackend == BackendMemory {
		errs = append(errs, errors.New("REMINDER_DEDUP_BACKEND=memory does not survive restarts; use redis or postgres with a durable REMINDER_STORE_BACKEND"))
	}
	return errors.Join(errs...)
}

func (c Config) checkBackend(name, value string, allowed ...string) error {
	found := false
	for _, a := range allowed {
		if value == a {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%s: unsupported backend %q (want one of %s)", name, value, strings.Join(allowed, ", "))
	}
	switch value {
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("%s=redis requires REDIS_URL", name)
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%s=postgres requires DATABASE_URL", name)
		}
	}
	return nil
}

// SMTPConfigured reports whether outbound mail has credentials.
func (e EmailConfig) SMTPConfigured() bool {
	return e.SMTPHost != "" && e.SMTPUser != "" && e.SMTPPassword != ""
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		Config
		AdminJWTSecret string `json:"admin_jwt_secret"`
		SMTPPassword   string `json:"smtp_password"`
		RedisURL       string `json:"redis_url"`
		DatabaseURL    string `json:"database_url"`
	}{
		Config:         c,
		AdminJWTSecret: maskSecret(c.Server.AdminJWTSecret),
		SMTPPassword:   maskSecret(c.Email.SMTPPassword),
		RedisURL:       maskSecret(c.Redis.URL),
		DatabaseURL:    maskSecret(c.Postgres.DSN),
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://", "redis://", "rediss://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (p *parser) list(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	return pstrings.SplitList(v, ",")
}
