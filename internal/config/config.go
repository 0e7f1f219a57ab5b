package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DefaultSystemPrompt = "You are a helpful and modern assistant."

	// DefaultMaxHistoryTurns caps stored history, excluding the system message.
	DefaultMaxHistoryTurns = 20
)

// SessionBackend selects where session state is persisted.
type SessionBackend string

const (
	SessionBackendMemory   SessionBackend = "memory"
	SessionBackendPostgres SessionBackend = "postgres"
	SessionBackendSQLite   SessionBackend = "sqlite"
)

// ProviderConfig holds per-provider request settings. Credentials are never part of it:
// they live only in the client's session.
type ProviderConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// FileConfig is the part of the configuration read from the YAML config file.
type FileConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	TitlePrompt  string `yaml:"title_prompt"`
	Providers    struct {
		OpenAI ProviderConfig `yaml:"openai"`
		Gemini ProviderConfig `yaml:"gemini"`
	} `yaml:"providers"`
}

type Config struct {
	Port    string
	GinMode string

	// Session
	SessionSecret          string
	SessionSecretEphemeral bool
	SessionCookieName      string
	SessionTTL             time.Duration
	SessionSweepSchedule   string
	SessionBackend         SessionBackend
	CookieSecure           bool

	// Database (postgres or sqlite session backend)
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Conversation
	SystemPrompt    string
	TitlePrompt     string
	MaxHistoryTurns int

	// Providers
	OpenAI          ProviderConfig
	Gemini          ProviderConfig
	ProviderTimeout time.Duration

	// Chat throttling per session, 0 disables.
	ChatRateLimitPerMinute int
	ChatRateLimitBurst     int

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins []string

	// Logging
	LogLevel  string
	LogFormat string
}

var AppConfig *Config

// LoadConfig reads .env, the environment and the optional YAML config file into AppConfig.
func LoadConfig() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()

	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config file %s not found, using defaults", configFilePath)
	case err != nil:
		log.Fatalf("Failed to open config file: %v", err)
	default:
		defer configFile.Close()
		log.Printf("Loading config file: %v", configFilePath)
		if err := LoadConfigFile(configFile, cfg); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	if cfg.SessionSecretEphemeral {
		log.Println("Warning: SESSION_SECRET is not set. Using a generated secret; sessions will not survive a restart.")
	}

	if cfg.SessionBackend != SessionBackendMemory && cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required for session backend %q", cfg.SessionBackend)
	}

	AppConfig = cfg
	return cfg
}

// FromEnv builds a Config from environment variables only.
func FromEnv() *Config {
	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "5000"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		SessionSecret:        strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		SessionCookieName:    getEnvOrDefault("SESSION_COOKIE_NAME", "chat_session"),
		SessionTTL:           getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SessionSweepSchedule: getEnvOrDefault("SESSION_SWEEP_SCHEDULE", "@every 10m"),
		SessionBackend:       SessionBackend(getEnvOrDefault("SESSION_BACKEND", string(SessionBackendMemory))),
		CookieSecure:         getEnvOrDefault("COOKIE_SECURE", "false") == "true",

		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),

		SystemPrompt:    DefaultSystemPrompt,
		MaxHistoryTurns: getEnvAsInt("MAX_HISTORY_TURNS", DefaultMaxHistoryTurns),

		OpenAI: ProviderConfig{
			BaseURL:     getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
			Temperature: 0.7,
			MaxTokens:   1000,
		},
		Gemini: ProviderConfig{
			BaseURL:     getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:       getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash-latest"),
			Temperature: 0.7,
			MaxTokens:   1000,
		},
		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 60*time.Second),

		ChatRateLimitPerMinute: getEnvAsInt("CHAT_RATE_LIMIT_PER_MINUTE", 30),
		ChatRateLimitBurst:     getEnvAsInt("CHAT_RATE_LIMIT_BURST", 5),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		CORSAllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5000")),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = generateSecret()
		cfg.SessionSecretEphemeral = true
	}

	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = DefaultMaxHistoryTurns
	}

	return cfg
}

// LoadConfigFile merges the YAML config file into config.
// Environment variables that were explicitly set keep precedence for base URLs and models.
func LoadConfigFile(reader io.Reader, config *Config) error {
	var file FileConfig
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if s := strings.TrimSpace(file.SystemPrompt); s != "" {
		config.SystemPrompt = s
	}
	if s := strings.TrimSpace(file.TitlePrompt); s != "" {
		config.TitlePrompt = s
	}

	mergeProvider(&config.OpenAI, file.Providers.OpenAI, "OPENAI_BASE_URL", "OPENAI_MODEL")
	mergeProvider(&config.Gemini, file.Providers.Gemini, "GEMINI_BASE_URL", "GEMINI_MODEL")

	return nil
}

func mergeProvider(dst *ProviderConfig, src ProviderConfig, baseURLEnv, modelEnv string) {
	if src.BaseURL != "" && os.Getenv(baseURLEnv) == "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Model != "" && os.Getenv(modelEnv) == "" {
		dst.Model = src.Model
	}
	if src.Temperature > 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxTokens > 0 {
		dst.MaxTokens = src.MaxTokens
	}
}

func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate session secret: %v", err)
	}
	return hex.EncodeToString(b)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
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
