package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

const minTicketSecretLength = 32

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int
	AppBaseURL string

	// Logging
	LogFormat string
	LogLevel  string

	// Token store
	TokenStore string
	RedisURL   string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Account service
	AuthServer        string
	AdminAuthUser     string
	AdminAuthPassword string
	UpstreamTimeout   time.Duration

	// Magic link ticket
	TicketSecret string
	TicketTTL    time.Duration

	PasswordMinLength     int
	PasswordRequireLetter bool
	PasswordRequireNumber bool
	MaxRequestBodySize    int64

	SMTP            SMTPConfig
	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	TLS      bool
}

// RateLimitConfig holds per-IP limits. Email limits the endpoints that send
// mail, Verify the token checking endpoints.
type RateLimitConfig struct {
	Enabled                    bool
	EmailRequestsPerWindow     int
	EmailWindowMinutes         int
	VerifyRequestsPerWindow    int
	VerifyWindowMinutes        int
	ReconcileRequestsPerMinute int
}

type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
	CacheControl       string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		AppBaseURL: strings.TrimSuffix(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),

		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		TokenStore: strings.ToLower(getEnv("TOKEN_STORE", StoreMemory)),
		RedisURL:   getEnv("REDIS_URL", ""),

		// Database defaults (matches podman setup: make postgres-start)
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 25432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "bewirtungsbeleg"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		AuthServer:        strings.TrimSuffix(getEnv("AUTH_SERVER", ""), "/"),
		AdminAuthUser:     getEnv("ADMIN_AUTH_USER", ""),
		AdminAuthPassword: getEnv("ADMIN_AUTH_PASSWORD", ""),
		UpstreamTimeout:   getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		TicketSecret: getEnv("TICKET_SECRET", ""),
		TicketTTL:    getEnvDuration("TICKET_TTL", 5*time.Minute),

		PasswordMinLength:     getEnvInt("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireLetter: getEnvBool("PASSWORD_REQUIRE_LETTER", false),
		PasswordRequireNumber: getEnvBool("PASSWORD_REQUIRE_NUMBER", false),
		MaxRequestBodySize:    int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "noreply@docbits.com"),
			FromName: getEnv("SMTP_FROM_NAME", "DocBits Bewirtungsbeleg"),
			TLS:      getEnvBool("SMTP_TLS", true),
		},

		// 3 mails per minute per IP
		RateLimit: RateLimitConfig{
			Enabled:                    getEnvBool("RATE_LIMIT_ENABLED", true),
			EmailRequestsPerWindow:     getEnvInt("RATE_LIMIT_EMAIL_REQUESTS", 3),
			EmailWindowMinutes:         getEnvInt("RATE_LIMIT_EMAIL_WINDOW_MINUTES", 1),
			VerifyRequestsPerWindow:    getEnvInt("RATE_LIMIT_VERIFY_REQUESTS", 20),
			VerifyWindowMinutes:        getEnvInt("RATE_LIMIT_VERIFY_WINDOW_MINUTES", 1),
			ReconcileRequestsPerMinute: getEnvInt("RATE_LIMIT_RECONCILE_REQUESTS", 60),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_HEADERS_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HEADERS_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_HEADERS_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_HEADERS_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_HEADERS_XSS_PROTECTION", "0"),
			ReferrerPolicy:     getEnv("SECURITY_HEADERS_REFERRER_POLICY", "strict-origin-when-cross-origin"),
			PermissionsPolicy:  getEnv("SECURITY_HEADERS_PERMISSIONS_POLICY", "geolocation=(), microphone=(), camera=()"),
			CacheControl:       getEnv("SECURITY_HEADERS_CACHE_CONTROL", "no-store"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required and dependent settings.
func (c *Config) Validate() error {
	if c.TicketSecret == "" {
		return fmt.Errorf("TICKET_SECRET is required")
	}
	if len(c.TicketSecret) < minTicketSecretLength {
		return fmt.Errorf("TICKET_SECRET must be at least %d characters", minTicketSecretLength)
	}

	switch c.TokenStore {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when TOKEN_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q (want memory, redis or postgres)", c.TokenStore)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q (want json or text)", c.LogFormat)
	}

	if c.PasswordMinLength < 1 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be positive")
	}
	return nil
}

// HasUpstream returns true if an account service is configured.
func (c *Config) HasUpstream() bool {
	return c.AuthServer != ""
}

// HasSMTP returns true if outgoing mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTP.Host != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
