package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sitegrid/sitegrid/internal/security"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SecurityConfig holds the authorization engine configuration.
//
// ResolutionPolicy has no default: the deployment must state whether
// incomplete identities are rejected (strict) or mapped to the demo
// context (permissive-dev). An unset policy fails startup.
type SecurityConfig struct {
	ResolutionPolicy security.ResolutionPolicy
	ResolveTimeout   time.Duration
	ModuleCacheTTL   time.Duration
	JWTSigningKey    string
	BreakGlassTTL    time.Duration
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	RetentionDays int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	policy, err := security.ParsePolicy(os.Getenv("SECURITY_RESOLUTION_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("SECURITY_RESOLUTION_POLICY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "sitegrid"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "sitegrid"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Security: SecurityConfig{
			ResolutionPolicy: policy,
			ResolveTimeout:   parseDuration("SECURITY_RESOLVE_TIMEOUT", "5s"),
			ModuleCacheTTL:   parseDuration("MODULE_CACHE_TTL", "5m"),
			JWTSigningKey:    getEnv("JWT_SIGNING_KEY", ""),
			BreakGlassTTL:    parseDuration("BREAKGLASS_TTL", "1h"),
		},
		Audit: AuditConfig{
			RetentionDays: parseInt("AUDIT_RETENTION_DAYS", 365),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sitegrid"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Security.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	if _, err := security.ParsePolicy(string(c.Security.ResolutionPolicy)); err != nil {
		return err
	}
	if c.Security.ResolutionPolicy == security.PolicyPermissiveDev {
		// Permissive is a development convenience only; make sure it is
		// never silently carried into a hardened deployment.
		if !parseBool("SECURITY_ALLOW_PERMISSIVE", false) {
			return fmt.Errorf("permissive resolution policy requires SECURITY_ALLOW_PERMISSIVE=true")
		}
	}
	if c.Audit.RetentionDays < 30 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be at least 30")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
