package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM provider selectors.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM scoring
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Patent record API
	PatentAPIURL     string
	PatentAPIKey     string
	PatentAPITimeout time.Duration

	// Execution
	Workers     int
	CallTimeout time.Duration
	MaxRetries  int

	// Citation cache
	CitationCacheTTL time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "patentgraph"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "research"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     getEnv("PGRAPH_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("PGRAPH_LLM_MODEL", "llama3.2"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		PatentAPIURL:     getEnv("PGRAPH_PATENT_API_URL", "https://api.patentsview.org"),
		PatentAPIKey:     getEnv("PGRAPH_PATENT_API_KEY", ""),
		PatentAPITimeout: getDuration("PGRAPH_PATENT_API_TIMEOUT", 30*time.Second),

		Workers:     getInt("PGRAPH_WORKERS", 4),
		CallTimeout: getDuration("PGRAPH_CALL_TIMEOUT", 5*time.Minute),
		MaxRetries:  getInt("PGRAPH_MAX_RETRIES", 2),

		CitationCacheTTL: getDuration("PGRAPH_CITATION_CACHE_TTL", 0),

		LogFile:  getEnv("PGRAPH_LOG_FILE", "/tmp/patentgraph.log"),
		LogLevel: parseLogLevel(getEnv("PGRAPH_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
