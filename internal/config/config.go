package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Token         TokenConfig
	Users         UsersConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TokenConfig holds token signing and validation configuration
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// UsersConfig selects and configures the credential store backend.
type UsersConfig struct {
	// Backend is "static" or "postgres".
	Backend string

	// Static is the static backend's user list as
	// username:role:password triples, comma-separated.
	Static string
}

// DatabaseConfig holds database configuration for the postgres backend
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

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// SecurityConfig holds password hashing configuration
type SecurityConfig struct {
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32
}

// RateLimitConfig holds rate limiter housekeeping plus the unauthenticated
// per-IP limit on the login endpoint. Per-principal limits come from the
// role policy table, not from here.
type RateLimitConfig struct {
	EvictionWindow time.Duration
	SweepInterval  time.Duration
	LoginRPS       float64
	LoginBurst     int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Token: TokenConfig{
			Secret:   getEnv("TOKEN_SECRET", ""),
			Issuer:   getEnv("TOKEN_ISSUER", "gatewarden"),
			Audience: getEnv("TOKEN_AUDIENCE", "gatewarden-api"),
			TTL:      parseDuration("TOKEN_TTL", "30m"),
		},
		Users: UsersConfig{
			Backend: getEnv("USERS_BACKEND", "static"),
			Static:  getEnv("USERS_STATIC", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "gatewarden"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "gatewarden"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "gatewarden"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		Security: SecurityConfig{
			Argon2Memory:      uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:  uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:  uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:   uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
		},
		RateLimit: RateLimitConfig{
			EvictionWindow: parseDuration("RATELIMIT_EVICTION_WINDOW", "10m"),
			SweepInterval:  parseDuration("RATELIMIT_SWEEP_INTERVAL", "1m"),
			LoginRPS:       float64(parseInt("RATELIMIT_LOGIN_RPS", 10)),
			LoginBurst:     parseInt("RATELIMIT_LOGIN_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration. The service fails at boot rather
// than serving with a missing signing secret or no usable credential store.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	switch c.Users.Backend {
	case "static":
		if c.Users.Static == "" {
			return fmt.Errorf("USERS_STATIC is required with the static backend")
		}
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required with the postgres backend")
		}
	default:
		return fmt.Errorf("unknown users backend %q", c.Users.Backend)
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
