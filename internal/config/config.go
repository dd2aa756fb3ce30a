package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket audio channel
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxAudioFrame  int64

	// Auth
	WebhookSecret  string
	OperatorSecret string
	SkipAuth       bool

	// Retrieval
	RetrievalK       int
	RetrievalTimeout time.Duration
	EmbeddingModel   string
	KnowledgeDir     string

	// Completion
	CompletionModel   string
	CompletionTimeout time.Duration
	GeminiAPIKey      string
	FallbackResponse  string

	// Call state
	// MinTurnsForCompleted is the terminal-status heuristic: a call that
	// ends without a reported outcome is "completed" when it reached at
	// least this many turns, "missed" otherwise.
	MinTurnsForCompleted int

	// Storage
	StorageQueueSize   int
	StorageMaxAttempts int
	StorageRetryDelay  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),
		OperatorSecret:   getEnv("OPERATOR_SECRET", ""),
		SkipAuth:         getEnv("SKIP_AUTH", "false") == "true",
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		KnowledgeDir:     getEnv("KNOWLEDGE_DIR", ""),
		CompletionModel:  getEnv("COMPLETION_MODEL", "gemini-2.0-flash"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		FallbackResponse: getEnv("FALLBACK_RESPONSE", "I'm sorry, I'm having trouble answering right now. Could you repeat that?"),
	}

	var err error

	config.WSReadTimeout, err = parseSeconds("WS_READ_TIMEOUT", "60")
	if err != nil {
		return nil, err
	}

	config.WSWriteTimeout, err = parseSeconds("WS_WRITE_TIMEOUT", "10")
	if err != nil {
		return nil, err
	}

	config.RetrievalTimeout, err = parseMillis("RETRIEVAL_TIMEOUT_MS", "800")
	if err != nil {
		return nil, err
	}

	config.CompletionTimeout, err = parseSeconds("COMPLETION_TIMEOUT", "15")
	if err != nil {
		return nil, err
	}

	config.RetrievalK, err = parseInt("RETRIEVAL_K", "5")
	if err != nil {
		return nil, err
	}

	config.MinTurnsForCompleted, err = parseInt("MIN_TURNS_FOR_COMPLETED", "1")
	if err != nil {
		return nil, err
	}

	config.StorageQueueSize, err = parseInt("STORAGE_QUEUE_SIZE", "1024")
	if err != nil {
		return nil, err
	}

	config.StorageMaxAttempts, err = parseInt("STORAGE_MAX_ATTEMPTS", "3")
	if err != nil {
		return nil, err
	}

	config.StorageRetryDelay, err = parseMillis("STORAGE_RETRY_DELAY_MS", "250")
	if err != nil {
		return nil, err
	}

	// WebSocket constants derived from the timeouts
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxAudioFrame = 64 * 1024

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

func parseInt(key, def string) (int, error) {
	v, err := strconv.Atoi(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseSeconds(key, def string) (time.Duration, error) {
	v, err := parseInt(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

func parseMillis(key, def string) (time.Duration, error) {
	v, err := parseInt(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Millisecond, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
