// Package config loads engine configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection (memory records, procedures, session archive)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Session store
	SessionDriver     string // "memory" or "redis"
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SessionTimeout    time.Duration
	SessionSweepEvery time.Duration

	// Providers
	ProviderOrder    []string // ranked, highest priority first
	RaceWidth        int      // providers raced concurrently per round
	ProviderTimeout  time.Duration
	PipelineDeadline time.Duration
	ConfidenceFloor  float64
	ClarifyThreshold float64
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	OllamaHost       string
	OpenAIModel      string
	AnthropicModel   string
	OllamaModel      string
	BedrockModel     string
	BedrockRegion    string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int

	// Memory retrieval
	MemoryTopK       int
	WeightSimilarity float64
	WeightRecency    float64
	WeightImportance float64
	RecencyHalfLife  time.Duration
	MemoryMaxAge     time.Duration
	MemoryMinKeep    float64

	// External collaborators
	AssetAPIURL    string
	BusinessAPIURL string

	// Procedure template library
	ProcedureDir string

	// Gateway
	ListenAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "fieldvoice"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "engine"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		SessionDriver:     getEnv("FIELDVOICE_SESSION_DRIVER", "memory"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		SessionTimeout:    getEnvDuration("FIELDVOICE_SESSION_TIMEOUT", 15*time.Minute),
		SessionSweepEvery: getEnvDuration("FIELDVOICE_SESSION_SWEEP", time.Minute),

		ProviderOrder:    splitList(getEnv("FIELDVOICE_PROVIDERS", "openai,anthropic,ollama,canned")),
		RaceWidth:        getEnvInt("FIELDVOICE_RACE_WIDTH", 2),
		ProviderTimeout:  getEnvDuration("FIELDVOICE_PROVIDER_TIMEOUT", 800*time.Millisecond),
		PipelineDeadline: getEnvDuration("FIELDVOICE_PIPELINE_DEADLINE", 1200*time.Millisecond),
		ConfidenceFloor:  getEnvFloat("FIELDVOICE_CONFIDENCE_FLOOR", 0.5),
		ClarifyThreshold: getEnvFloat("FIELDVOICE_CLARIFY_THRESHOLD", 0.6),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIModel:      getEnv("FIELDVOICE_OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicModel:   getEnv("FIELDVOICE_ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		OllamaModel:      getEnv("FIELDVOICE_OLLAMA_MODEL", "llama3.2"),
		BedrockModel:     getEnv("FIELDVOICE_BEDROCK_MODEL", ""),
		BedrockRegion:    getEnv("AWS_REGION", "us-east-1"),

		EmbedProvider:  getEnv("FIELDVOICE_EMBED_PROVIDER", "ollama"),
		EmbedModel:     getEnv("FIELDVOICE_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("FIELDVOICE_EMBED_DIMENSION", 384),

		MemoryTopK:       getEnvInt("FIELDVOICE_MEMORY_TOPK", 5),
		WeightSimilarity: getEnvFloat("FIELDVOICE_WEIGHT_SIMILARITY", 1.0/3.0),
		WeightRecency:    getEnvFloat("FIELDVOICE_WEIGHT_RECENCY", 1.0/3.0),
		WeightImportance: getEnvFloat("FIELDVOICE_WEIGHT_IMPORTANCE", 1.0/3.0),
		RecencyHalfLife:  getEnvDuration("FIELDVOICE_RECENCY_HALFLIFE", 24*time.Hour),
		MemoryMaxAge:     getEnvDuration("FIELDVOICE_MEMORY_MAX_AGE", 90*24*time.Hour),
		MemoryMinKeep:    getEnvFloat("FIELDVOICE_MEMORY_MIN_KEEP", 0.2),

		AssetAPIURL:    getEnv("FIELDVOICE_ASSET_API", "http://localhost:8090/api/assets"),
		BusinessAPIURL: getEnv("FIELDVOICE_BUSINESS_API", "http://localhost:8090/api/actions"),

		ProcedureDir: getEnv("FIELDVOICE_PROCEDURE_DIR", "procedures"),

		ListenAddr: getEnv("FIELDVOICE_LISTEN", ":8477"),

		LogFile:  getEnv("FIELDVOICE_LOG_FILE", "/tmp/fieldvoice.log"),
		LogLevel: parseLogLevel(getEnv("FIELDVOICE_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
