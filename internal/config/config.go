// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Analysis providers accepted by ANALYSIS_PROVIDER.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderGRPC      = "grpc"
	ProviderNone      = "none"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	KYBDir      string
	SessionTTL  time.Duration

	Scraper         ScraperConfig
	Analysis        AnalysisConfig
	Vector          VectorConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// ScraperConfig controls outbound page fetches.
type ScraperConfig struct {
	Timeout    time.Duration
	UserAgent  string
	RatePerSec float64
}

// AnalysisConfig selects and configures the analysis oracle.
type AnalysisConfig struct {
	Provider        string
	Model           string
	Timeout         time.Duration
	GeminiAPIKey    string
	AnthropicAPIKey string
	GRPCAddr        string
}

// VectorConfig controls the snippet store used for context retrieval.
type VectorConfig struct {
	EmbeddingModel string
	TopK           int
}

// RateLimitConfig bounds chat turns per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	MaxOpenFiles  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/datasynth.db"),
		KYBDir:      getEnv("KYB_DIR", "./data/kyb"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 24*time.Hour),
		Scraper: ScraperConfig{
			Timeout:    getEnvDuration("SCRAPER_TIMEOUT", 12*time.Second),
			UserAgent:  getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (compatible; DatasynthBot/1.0)"),
			RatePerSec: getEnvFloat("SCRAPER_RATE_PER_SEC", 2),
		},
		Analysis: AnalysisConfig{
			Provider:        strings.ToLower(getEnv("ANALYSIS_PROVIDER", defaultProvider())),
			Model:           getEnv("ANALYSIS_MODEL", ""),
			Timeout:         getEnvDuration("ANALYSIS_TIMEOUT", 30*time.Second),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			GRPCAddr:        getEnv("ANALYSIS_GRPC_ADDR", "localhost:50051"),
		},
		Vector: VectorConfig{
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
			TopK:           getEnvInt("VECTOR_TOP_K", 3),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			MaxOpenFiles:  getEnvInt("CONVERSATION_LOG_MAX_OPEN_FILES", 64),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultProvider picks gemini when a key is present, otherwise runs without an oracle.
func defaultProvider() string {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return ProviderGemini
	}
	return ProviderNone
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.KYBDir == "" {
		return fmt.Errorf("KYB_DIR cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT must be > 0")
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be > 0")
	}

	switch c.Analysis.Provider {
	case ProviderGemini:
		if c.Analysis.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.Analysis.Provider)
		}
	case ProviderAnthropic:
		if c.Analysis.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Analysis.Provider)
		}
	case ProviderGRPC:
		if c.Analysis.GRPCAddr == "" {
			return fmt.Errorf("ANALYSIS_GRPC_ADDR is required for provider %q", c.Analysis.Provider)
		}
	case ProviderNone:
	default:
		return fmt.Errorf("unknown ANALYSIS_PROVIDER %q", c.Analysis.Provider)
	}

	if c.Vector.TopK <= 0 {
		return fmt.Errorf("VECTOR_TOP_K must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.ConversationLog.MaxOpenFiles <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_MAX_OPEN_FILES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
