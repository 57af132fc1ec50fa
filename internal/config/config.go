package config

import (
	"io"
	"log"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// LLMTaskConfig holds the model settings for one LLM-backed task.
type LLMTaskConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// LLMConfig holds the settings for the chat-completions endpoint the
// title and tag helpers call.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TitleTask      LLMTaskConfig `yaml:"title"`
	TagSuggestTask LLMTaskConfig `yaml:"tag_suggestions"`
}

type Config struct {
	Port    string
	GinMode string

	// Database
	DatabaseURL string

	// Clerk session token validation
	ClerkJWKSURL string

	// LLM
	LLMAPIKey string
	LLM       *LLMConfig `yaml:"llm"`

	// Database Connection Pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Title Generation Worker Pool
	TitleWorkerPoolSize int
	TitleQueueSize      int
	TitleTimeoutSeconds int

	// Conversation Cleanup
	CleanupEnabled      bool
	CleanupSchedule     string
	CleanupMaxAgeHours  int

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string
}

var AppConfig *Config

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		// Database
		DatabaseURL: getEnvOrDefault("DATABASE_URL", "postgres://localhost/policyvoice?sslmode=disable"),

		// Clerk
		ClerkJWKSURL: getEnvOrDefault("CLERK_JWKS_URL", ""),

		// LLM
		LLMAPIKey: getEnvOrDefault("LLM_API_KEY", ""),

		// Database Connection Pool
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 15),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 1),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		// Title Generation Worker Pool
		TitleWorkerPoolSize: getEnvAsInt("TITLE_WORKER_POOL_SIZE", 2),
		TitleQueueSize:      getEnvAsInt("TITLE_QUEUE_SIZE", 100),
		TitleTimeoutSeconds: getEnvAsInt("TITLE_TIMEOUT_SECONDS", 60),

		// Conversation Cleanup
		CleanupEnabled:     getEnvOrDefault("CLEANUP_ENABLED", "true") == "true",
		CleanupSchedule:    getEnvOrDefault("CLEANUP_SCHEDULE", "0 4 * * *"),
		CleanupMaxAgeHours: getEnvAsInt("CLEANUP_MAX_AGE_HOURS", 72),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// CORS
		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	// Load LLM settings from the configuration file.
	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	log.Printf("Loading config file: %v", configFilePath)

	configFile, err := os.Open(configFilePath)
	defer func() {
		if configFile != nil {
			configFile.Close()
		}
	}()

	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	if err := LoadConfigFile(configFile, AppConfig); err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}

	// Validate required configs
	if AppConfig.LLM == nil {
		log.Fatal("LLM configuration is empty")
	}

	if AppConfig.LLMAPIKey == "" {
		log.Println("Warning: LLM API key is missing. Please set LLM_API_KEY environment variable.")
	}

	if AppConfig.ClerkJWKSURL == "" {
		log.Println("Warning: Clerk JWKS URL is missing. Token validation runs in development mode.")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return nil
}
