package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/threatprofile-gateway/utils"
)

// Token store backends
const (
	TokenStoreCookie = "cookie"
	TokenStoreRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig
	Cognito        CognitoConfig
	ProfileService ProfileServiceConfig
	Session        SessionConfig
	Guard          GuardConfig
	Observability  ObservabilityConfig
	Environment    string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"gt=0"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// CognitoConfig holds AWS Cognito authentication configuration
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	Domain       string // e.g. https://my-app.auth.us-east-1.amazoncognito.com
	RedirectURI  string // OAuth2 callback URL
	FrontEndURL  string `validate:"required,url"` // dashboard origin; page routes are forwarded here
}

// ProfileServiceConfig locates the upstream profile service
type ProfileServiceConfig struct {
	URL       string        `validate:"required,url"`
	Timeout   time.Duration `validate:"gt=0"`
	CacheTTL  time.Duration
	CacheSize int
}

// SessionConfig selects where the token pair lives between requests
type SessionConfig struct {
	TokenStore   string `validate:"oneof=cookie redis"`
	RedisURL     string
	TTL          time.Duration `validate:"gt=0"`
	CookieSecure bool
	CookieDomain string
}

// GuardConfig holds route guard timing and redirect paths
type GuardConfig struct {
	RevalidateInterval time.Duration `validate:"gt=0"`
	ClockSkew          time.Duration
	LoginPath          string `validate:"required,startswith=/"`
	CreateOrgPath      string `validate:"required,startswith=/"`
	DashboardPath      string `validate:"required,startswith=/"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required"`
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Cognito: CognitoConfig{
			Region:       getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:   getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:     getEnv("COGNITO_CLIENT_ID", ""),
			ClientSecret: getEnv("COGNITO_CLIENT_SECRET", ""),
			Domain:       getEnv("COGNITO_DOMAIN", ""),
			RedirectURI:  getEnv("COGNITO_REDIRECT_URI", "http://localhost:8080/oauth2/idpresponse"),
			FrontEndURL:  getEnv("FRONT_END_URL", "http://localhost:5173"),
		},
		ProfileService: ProfileServiceConfig{
			URL:       getEnv("PROFILE_SERVICE_URL", "http://localhost:8000/api/v1"),
			Timeout:   getEnvAsDuration("PROFILE_SERVICE_TIMEOUT", 10*time.Second),
			CacheTTL:  getEnvAsDuration("PROFILE_CACHE_TTL", 30*time.Second),
			CacheSize: getEnvAsInt("PROFILE_CACHE_SIZE", 1000),
		},
		Session: SessionConfig{
			TokenStore:   strings.ToLower(getEnv("TOKEN_STORE", TokenStoreCookie)),
			RedisURL:     getEnv("REDIS_URL", ""),
			TTL:          getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			CookieSecure: getEnvAsBool("COOKIE_SECURE", true),
			CookieDomain: getEnv("COOKIE_DOMAIN", ""),
		},
		Guard: GuardConfig{
			RevalidateInterval: getEnvAsDuration("GUARD_REVALIDATE_INTERVAL", 5*time.Minute),
			ClockSkew:          getEnvAsDuration("GUARD_CLOCK_SKEW", 30*time.Second),
			LoginPath:          getEnv("GUARD_LOGIN_PATH", "/auth"),
			CreateOrgPath:      getEnv("GUARD_CREATE_ORG_PATH", "/organization/create"),
			DashboardPath:      getEnv("GUARD_DASHBOARD_PATH", "/dashboard"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	for _, section := range []interface{}{&c.Server, &c.Cognito, &c.ProfileService, &c.Session, &c.Guard, &c.Observability} {
		if err := utils.ValidateStruct(section); err != nil {
			return fmt.Errorf("%w: %v", err, utils.GetValidationFields(err))
		}
	}

	if c.Session.TokenStore == TokenStoreRedis && c.Session.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when TOKEN_STORE=redis")
	}

	// Cognito validation (required in production)
	if c.IsProduction() {
		if c.Cognito.UserPoolID == "" {
			return fmt.Errorf("cognito user pool ID is required in production")
		}
		if c.Cognito.ClientID == "" {
			return fmt.Errorf("cognito client ID is required in production")
		}
		if !c.Session.CookieSecure {
			return fmt.Errorf("COOKIE_SECURE must be enabled in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
