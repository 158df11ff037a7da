package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Upstream endpoints (availability provider, booking, OTP identity)
	Upstream UpstreamConfig

	// Session token configuration
	JWT JWTConfig

	// Wizard session configuration
	Session SessionConfig

	// OTP shortcut configuration
	OTP OTPConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// UpstreamConfig holds upstream HTTP configuration
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret       string
	SessionToken time.Duration
}

// SessionConfig holds wizard session lifecycle configuration
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// OTPConfig holds identity-shortcut configuration
type OTPConfig struct {
	ResendCooldown time.Duration
	CodeLength     int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Upstream: UpstreamConfig{
			BaseURL: getEnv("UPSTREAM_BASE_URL", ""),
			Timeout: time.Duration(getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:       getEnv("SESSION_TOKEN_SECRET", ""),
			SessionToken: time.Duration(getEnvAsInt("SESSION_TOKEN_EXPIRY_SECONDS", 7200)) * time.Second,
		},
		Session: SessionConfig{
			IdleTTL:       time.Duration(getEnvAsInt("SESSION_IDLE_TTL_SECONDS", 1800)) * time.Second,
			SweepInterval: time.Duration(getEnvAsInt("SESSION_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		},
		OTP: OTPConfig{
			ResendCooldown: time.Duration(getEnvAsInt("OTP_RESEND_COOLDOWN_SECONDS", 60)) * time.Second,
			CodeLength:     getEnvAsInt("OTP_CODE_LENGTH", 6),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}

	if c.JWT.Secret == "" {
		if c.Server.Environment == "production" {
			return fmt.Errorf("SESSION_TOKEN_SECRET is required in production")
		}
		// Development fallback so the service runs out of the box
		c.JWT.Secret = "dev-session-secret"
		log.Println("SESSION_TOKEN_SECRET not set, using development default")
	}

	if c.OTP.CodeLength <= 0 {
		return fmt.Errorf("OTP_CODE_LENGTH must be positive")
	}

	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL_SECONDS must be positive")
	}

	return nil
}

// getEnv gets an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a fallback default
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer for %s, using default %d", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsSlice gets an environment variable as a comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
