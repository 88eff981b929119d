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
	Crypto   CryptoConfig
	Session  SessionConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Driver            string // "postgres" or "memory"
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
	Migrate           bool
}

type ServerConfig struct {
	Port                   string
	Env                    string
	LogLevel               string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	AuthRateLimitPerMinute int
	APIRateLimitPerMinute  int
	TrustedProxies         string
	CORSAllowedOrigins     []string
}

// CryptoConfig holds key locations and the deployment-wide secrets
type CryptoConfig struct {
	KeyDir               string
	AppKeyName           string
	KeyBits              int
	PrivateKeyPassphrase string
	SymmetricPassphrase  string
	Salt                 string
	Pepper               string
}

// SessionConfig holds session and invite lifetimes
type SessionConfig struct {
	DefaultTTL       time.Duration
	MaxTTL           time.Duration
	AccountInviteTTL time.Duration
	LoginInviteTTL   time.Duration
	PublicKeyTTL     time.Duration
	CleanupInterval  time.Duration
	FailureDelayMs   int
	FailureJitterMs  int
}

type EmailConfig struct {
	Provider      string // "ses" or "log"
	AWSRegion     string
	FromAddress   string
	InviteURLBase string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:            getEnv("DB_DRIVER", "postgres"),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "lockbox"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			Migrate:           getEnvAsBool("DB_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8080"),
			Env:                    env,
			LogLevel:               getEnv("LOG_LEVEL", "info"),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AuthRateLimitPerMinute: getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
			APIRateLimitPerMinute:  getEnvAsInt("API_RATE_LIMIT_PER_MINUTE", 100),
			TrustedProxies:         getEnv("TRUSTED_PROXIES", ""),
			CORSAllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Crypto: CryptoConfig{
			KeyDir:               getEnv("KEY_DIR", "./keys"),
			AppKeyName:           getEnv("APP_KEY_NAME", "app"),
			KeyBits:              getEnvAsInt("RSA_KEY_BITS", 4096),
			PrivateKeyPassphrase: getEnv("PRIVATE_KEY_PASSPHRASE", ""),
			SymmetricPassphrase:  getEnv("SYMMETRIC_PASSPHRASE", ""),
			Salt:                 getEnv("ENCRYPTION_SALT", ""),
			Pepper:               getEnv("ENCRYPTION_PEPPER", ""),
		},
		Session: SessionConfig{
			DefaultTTL:       getEnvAsDuration("SESSION_DEFAULT_TTL", 30*time.Minute),
			MaxTTL:           getEnvAsDuration("SESSION_MAX_TTL", 24*time.Hour),
			AccountInviteTTL: getEnvAsDuration("ACCOUNT_INVITE_TTL", 24*time.Hour),
			LoginInviteTTL:   getEnvAsDuration("LOGIN_INVITE_TTL", 15*time.Minute),
			PublicKeyTTL:     getEnvAsDuration("PUBLIC_KEY_TTL", 30*24*time.Hour),
			CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			FailureDelayMs:   getEnvAsInt("AUTH_FAILURE_DELAY_MS", 250),
			FailureJitterMs:  getEnvAsInt("AUTH_FAILURE_JITTER_MS", 250),
		},
		Email: EmailConfig{
			Provider:      getEnv("EMAIL_PROVIDER", "log"),
			AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
			FromAddress:   getEnv("EMAIL_FROM", "no-reply@lockbox.local"),
			InviteURLBase: getEnv("INVITE_URL_BASE", "http://localhost:8080"),
		},
	}

	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "memory" {
		return nil, fmt.Errorf("DB_DRIVER must be postgres or memory (got %q)", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if env == "production" && cfg.Database.Driver == "memory" {
		return nil, fmt.Errorf("DB_DRIVER=memory is not allowed in production")
	}
	if env == "production" && cfg.Email.Provider != "ses" {
		return nil, fmt.Errorf("EMAIL_PROVIDER must be ses in production")
	}

	if err := validateCrypto(&cfg.Crypto, env); err != nil {
		return nil, err
	}
	if err := validateSession(&cfg.Session); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateCrypto enforces that every deployment secret is present and, in
// production, strong enough
func validateCrypto(c *CryptoConfig, env string) error {
	secrets := []struct {
		name  string
		value string
	}{
		{"PRIVATE_KEY_PASSPHRASE", c.PrivateKeyPassphrase},
		{"SYMMETRIC_PASSPHRASE", c.SymmetricPassphrase},
		{"ENCRYPTION_SALT", c.Salt},
		{"ENCRYPTION_PEPPER", c.Pepper},
	}

	for _, s := range secrets {
		if err := validateSecret(s.name, s.value, env); err != nil {
			return err
		}
	}

	if c.KeyBits < 2048 {
		return fmt.Errorf("RSA_KEY_BITS must be at least 2048 (got %d)", c.KeyBits)
	}
	if env == "production" && c.KeyBits < 4096 {
		return fmt.Errorf("RSA_KEY_BITS must be at least 4096 in production (got %d)", c.KeyBits)
	}

	return nil
}

// validateSecret enforces minimum security standards for a deployment secret
func validateSecret(name, secret, env string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	// Minimum length based on environment
	minLength := 8 // Development minimum
	if env == "production" {
		minLength = 16
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example", "passphrase",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

// validateSession keeps configured lifetimes inside the protocol bounds
func validateSession(s *SessionConfig) error {
	if s.DefaultTTL < 30*time.Minute || s.DefaultTTL > s.MaxTTL {
		return fmt.Errorf("SESSION_DEFAULT_TTL must be between 30m and SESSION_MAX_TTL")
	}
	if s.MaxTTL > 24*time.Hour {
		return fmt.Errorf("SESSION_MAX_TTL must not exceed 24h")
	}
	if s.AccountInviteTTL <= 0 || s.AccountInviteTTL >= 48*time.Hour {
		return fmt.Errorf("ACCOUNT_INVITE_TTL must be positive and below 48h")
	}
	if s.LoginInviteTTL <= 0 || s.LoginInviteTTL >= 30*time.Minute {
		return fmt.Errorf("LOGIN_INVITE_TTL must be positive and below 30m")
	}
	if s.PublicKeyTTL <= 0 {
		return fmt.Errorf("PUBLIC_KEY_TTL must be positive")
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

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
