package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string // PostgreSQL with pgvector - tickets, threads, notes, drafts
	Version     string
	LogLevel    string
	AutoMigrate bool // Create missing tables on startup

	OpenAIKey                      string
	AzureOpenAIEndpoint            string
	AzureOpenAIKey                 string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	OpenAITimeout                  int // Per-attempt timeout for LLM and embedding calls, in seconds
	OpenAIMaxRetries               int // Extra attempts after the first one

	ContextSimilarityThreshold float64 // Minimum similarity for semantic note retrieval
	ContextResultLimit         int     // Maximum number of notes handed to the model
	SettingsCacheTTL           int     // Organization settings cache TTL in seconds
	BackgroundTaskTimeout      int     // Timeout for each post-ingestion task in seconds

	SendGridAPIKey string // SendGrid API key for sending approved replies
	SupportEmail   string // From address for outbound replies
	SupportName    string // From name for outbound replies

	AdminUsername string
	AdminPassword string
	AgentAccounts string // Comma separated id:password pairs

	WebhookSecret string // Shared secret expected in X-Webhook-Secret, optional
	RedisURL      string // Enables the distributed per-ticket summary lock, optional
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", false),

		OpenAIKey:                      os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIKey:                 os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		OpenAITimeout:                  getEnvInt("OPENAI_TIMEOUT", 60),
		OpenAIMaxRetries:               getEnvInt("OPENAI_MAX_RETRIES", 2),

		ContextSimilarityThreshold: getEnvFloat("CONTEXT_SIMILARITY_THRESHOLD", 0.6),
		ContextResultLimit:         getEnvInt("CONTEXT_RESULT_LIMIT", 5),
		SettingsCacheTTL:           getEnvInt("SETTINGS_CACHE_TTL_SECONDS", 60),
		BackgroundTaskTimeout:      getEnvInt("BACKGROUND_TASK_TIMEOUT", 180),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		SupportEmail:   getEnv("SUPPORT_EMAIL", "support@example.com"),
		SupportName:    getEnv("SUPPORT_NAME", "Support"),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AgentAccounts: os.Getenv("AGENT_ACCOUNTS"),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		RedisURL:      os.Getenv("REDIS_URL"),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI is configured as the primary provider
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIEndpoint != "" && c.AzureOpenAIKey != ""
}

// HasOpenAIFallback reports whether the OpenAI platform key is available
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// LLMTimeout returns the per-attempt timeout for model calls
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.OpenAITimeout) * time.Second
}

// TaskTimeout returns the timeout applied to each background task
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.BackgroundTaskTimeout) * time.Second
}

// Agents parses AGENT_ACCOUNTS into an id -> password map. The admin account,
// when configured, is included under its username.
func (c *Config) Agents() map[string]string {
	agents := make(map[string]string)
	for _, pair := range strings.Split(c.AgentAccounts, ",") {
		id, password, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || id == "" || password == "" {
			continue
		}
		agents[id] = password
	}
	if c.AdminUsername != "" && c.AdminPassword != "" {
		agents[c.AdminUsername] = c.AdminPassword
	}
	return agents
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 with a default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "helpdesk").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
