package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Policy       PolicyConfig
	RateLimit    RateLimitConfig
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
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	StatsTTLSecs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	// Bootstrap admin is created at startup when no account uses its email.
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// NotificationConfig holds assignment notification endpoints.
type NotificationConfig struct {
	EmailFrom      string
	WebhookURL     string
	TimeoutSeconds int
	PerSecond      float64
	Burst          int
}

// SLAConfig holds the priority to allowed-days policy.
type SLAConfig struct {
	Policy domain.SLAPolicy
}

// DeactivationPolicy decides what happens to open work when a user is deactivated.
type DeactivationPolicy string

const (
	DeactivationKeep     DeactivationPolicy = "keep"
	DeactivationReassign DeactivationPolicy = "reassign"
)

// PolicyConfig groups business policy switches.
type PolicyConfig struct {
	Deactivation      DeactivationPolicy
	ConflictRetries   int
	BulkReassignLimit int
}

// RateLimitConfig configures per-client API throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

const minJWTSecretLength = 10

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	policy, err := loadSLAPolicy()
	if err != nil {
		return nil, err
	}

	deactivation := DeactivationPolicy(strings.ToLower(getEnv("USERS_DEACTIVATION_POLICY", string(DeactivationKeep))))
	if deactivation != DeactivationKeep && deactivation != DeactivationReassign {
		return nil, fmt.Errorf("invalid USERS_DEACTIVATION_POLICY: %q", deactivation)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "civic-issue-service"),
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
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:         os.Getenv("REDIS_ADDR"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			StatsTTLSecs: getEnvAsInt("REDIS_STATS_TTL_SECONDS", 60),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60*24*7),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AdminEmail:            os.Getenv("AUTH_ADMIN_EMAIL"),
			AdminPassword:         os.Getenv("AUTH_ADMIN_PASSWORD"),
			AdminName:             getEnv("AUTH_ADMIN_NAME", "System Administrator"),
		},
		Notification: NotificationConfig{
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 5),
			PerSecond:      getEnvAsFloat("NOTIFY_RATE_PER_SECOND", 5),
			Burst:          getEnvAsInt("NOTIFY_RATE_BURST", 10),
		},
		SLA: SLAConfig{
			Policy: policy,
		},
		Policy: PolicyConfig{
			Deactivation:      deactivation,
			ConflictRetries:   getEnvAsInt("ISSUES_CONFLICT_RETRIES", 3),
			BulkReassignLimit: getEnvAsInt("ISSUES_BULK_REASSIGN_PARALLELISM", 4),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("HTTP_RATE_LIMIT_PER_SECOND", 20),
			Burst:             getEnvAsInt("HTTP_RATE_LIMIT_BURST", 40),
		},
	}

	if len(cfg.Auth.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}

	return cfg, nil
}

// loadSLAPolicy starts from the default policy and applies SLA_<PRIORITY>_DAYS overrides.
func loadSLAPolicy() (domain.SLAPolicy, error) {
	policy := domain.DefaultSLAPolicy()
	for _, priority := range domain.IssuePriorities {
		key := "SLA_" + string(priority) + "_DAYS"
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		days, err := strconv.Atoi(val)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("invalid %s: %q", key, val)
		}
		policy[priority] = days
	}
	return policy, nil
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

// StatsTTL returns how long cached statistics may live.
func (r RedisConfig) StatsTTL() time.Duration {
	if r.StatsTTLSecs <= 0 {
		return 0
	}
	return time.Duration(r.StatsTTLSecs) * time.Second
}

// Timeout bounds a single notification delivery.
func (n NotificationConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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
