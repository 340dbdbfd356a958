package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret       string
	CleanupInterval time.Duration
}

// SecurityConfig enumerates every threshold and duration the security core
// uses. Components receive this at construction time; nothing reads the
// environment directly.
type SecurityConfig struct {
	FailureThreshold int           // failed logins before a lockout fires
	FailureWindow    time.Duration // trailing window examined for failures
	LockoutDuration  time.Duration // how long an account stays locked
	ResetTokenTTL    time.Duration // password reset token lifetime
	TrustThreshold   int           // logins from a fingerprint before it is trusted
	SessionTTL       time.Duration // session lifetime

	// Named rate-limit tiers. Strict guards sensitive mutating endpoints,
	// Moderate guards general reads, IPHourly is the per-network ceiling.
	StrictLimit    RateLimitTier
	ModerateLimit  RateLimitTier
	IPHourlyLimit  RateLimitTier
	SweepInterval  time.Duration
	TimingDelayMs  int
	TimingRandomMs int
}

type RateLimitTier struct {
	MaxRequests int
	Window      time.Duration
}

type EmailConfig struct {
	AWSRegion    string
	FromAddress  string
	ResetURLBase string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "wellguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:       jwtSecret,
			CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Security: SecurityConfig{
			FailureThreshold: getEnvAsInt("LOCKOUT_FAILURE_THRESHOLD", 5),
			FailureWindow:    getEnvAsDuration("LOCKOUT_FAILURE_WINDOW", 10*time.Minute),
			LockoutDuration:  getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			ResetTokenTTL:    getEnvAsDuration("RESET_TOKEN_TTL", 1*time.Hour),
			TrustThreshold:   getEnvAsInt("DEVICE_TRUST_THRESHOLD", 3),
			SessionTTL:       getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			StrictLimit: RateLimitTier{
				MaxRequests: getEnvAsInt("RATE_LIMIT_STRICT_MAX", 5),
				Window:      getEnvAsDuration("RATE_LIMIT_STRICT_WINDOW", 1*time.Minute),
			},
			ModerateLimit: RateLimitTier{
				MaxRequests: getEnvAsInt("RATE_LIMIT_MODERATE_MAX", 20),
				Window:      getEnvAsDuration("RATE_LIMIT_MODERATE_WINDOW", 1*time.Minute),
			},
			IPHourlyLimit: RateLimitTier{
				MaxRequests: getEnvAsInt("RATE_LIMIT_IP_MAX", 50),
				Window:      getEnvAsDuration("RATE_LIMIT_IP_WINDOW", 1*time.Hour),
			},
			SweepInterval:  getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
			TimingDelayMs:  getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
		},
		Email: EmailConfig{
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "security@veridia.example"),
			ResetURLBase: getEnv("RESET_URL_BASE", "http://localhost:3000"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the shared secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits in production
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants used by the dashboard frontends
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
