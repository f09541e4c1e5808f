package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Banking gateway
	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	// Operator surface
	OperatorAPIKey string

	// Batch engine
	SettlementSchedule string
	AutoCloseSchedule  string
	SettlementBatch    int
	StaleClaimAge      time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get values from environment variables with defaults
	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "moara"),
		DBPassword: getEnv("DB_PASSWORD", "moara"),
		DBName:     getEnv("DB_NAME", "moara"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Banking gateway
		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", "http://localhost:9090"),
		GatewayAPIKey:  getEnv("GATEWAY_API_KEY", ""),

		// Operator surface
		OperatorAPIKey: getEnv("OPERATOR_API_KEY", ""),

		// Batch engine. Cron expressions include a seconds field.
		SettlementSchedule: getEnv("SETTLEMENT_SCHEDULE", "0 */5 * * * *"),
		AutoCloseSchedule:  getEnv("AUTOCLOSE_SCHEDULE", "0 0 4 * * *"),
		SettlementBatch:    getEnvInt("SETTLEMENT_BATCH", 100),
	}

	config.GatewayTimeout = getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second)
	config.StaleClaimAge = getEnvDuration("STALE_CLAIM_AGE", 15*time.Minute)

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, value, defaultValue)
		return defaultValue
	}
	return d
}
