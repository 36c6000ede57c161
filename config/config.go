package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the application's configuration
type Config struct {
	OllamaHost        string        `mapstructure:"OLLAMA_HOST"`
	ChatModel         string        `mapstructure:"CHAT_MODEL"`
	EmbeddingModel    string        `mapstructure:"EMBEDDING_MODEL"`
	DataDir           string        `mapstructure:"DATA_DIR"`
	CollectionName    string        `mapstructure:"COLLECTION_NAME"`
	VectorBackend     string        `mapstructure:"VECTOR_BACKEND"`
	PostgresDSN       string        `mapstructure:"POSTGRES_DSN"`
	HistoryPath       string        `mapstructure:"HISTORY_PATH"`
	Temperature       float64       `mapstructure:"TEMPERATURE"`
	TopP              float64       `mapstructure:"TOP_P"`
	TopK              int           `mapstructure:"TOP_K"`
	RepeatPenalty     float64       `mapstructure:"REPEAT_PENALTY"`
	ResponseCacheTTL  time.Duration `mapstructure:"RESPONSE_CACHE_TTL"`
	ResponseCacheSize int           `mapstructure:"RESPONSE_CACHE_SIZE"`
	EmbedCacheSize    int           `mapstructure:"EMBED_CACHE_SIZE"`
	MaxRetries        int           `mapstructure:"MAX_RETRIES"`
	RetryDelaySeconds time.Duration `mapstructure:"RETRY_DELAY_SECONDS"`
	LLMRequestTimeout time.Duration `mapstructure:"LLM_REQUEST_TIMEOUT"`
	QueryTimeout      time.Duration `mapstructure:"QUERY_TIMEOUT"`
	MaxKnowledgeChars int           `mapstructure:"MAX_KNOWLEDGE_CHARS"`
	WebPort           int           `mapstructure:"WEB_PORT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
}

func Load(logger *zap.Logger) *Config {
	var config Config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")        // For running locally
	viper.AddConfigPath("../")      // For running from a subdir
	viper.AddConfigPath("./config") // Common config folder
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	viper.SetDefault("CHAT_MODEL", "qwen3:4b")
	viper.SetDefault("EMBEDDING_MODEL", "nomic-embed-text")
	viper.SetDefault("DATA_DIR", "./diary_db")
	viper.SetDefault("COLLECTION_NAME", "daily_diary")
	viper.SetDefault("VECTOR_BACKEND", "chromem")
	viper.SetDefault("POSTGRES_DSN", "")
	viper.SetDefault("HISTORY_PATH", "./diary_db/chat_history.db")
	viper.SetDefault("TEMPERATURE", 0.7)
	viper.SetDefault("TOP_P", 0.8)
	viper.SetDefault("TOP_K", 20)
	viper.SetDefault("REPEAT_PENALTY", 1.5)
	viper.SetDefault("RESPONSE_CACHE_TTL", 600)
	viper.SetDefault("RESPONSE_CACHE_SIZE", 100)
	viper.SetDefault("EMBED_CACHE_SIZE", 512)
	viper.SetDefault("MAX_RETRIES", 5)
	viper.SetDefault("RETRY_DELAY_SECONDS", 2)
	viper.SetDefault("LLM_REQUEST_TIMEOUT", 300)
	viper.SetDefault("QUERY_TIMEOUT", 300)
	viper.SetDefault("MAX_KNOWLEDGE_CHARS", 24000)
	viper.SetDefault("WEB_PORT", 8089)
	viper.SetDefault("LOG_LEVEL", "info")

	if err := viper.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		// Config unmarshaling is critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to decode config into struct", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: Unable to decode config into struct: %v\n", err)
			os.Exit(1)
		}
	}

	// Convert seconds to proper time.Duration
	config.ResponseCacheTTL = config.ResponseCacheTTL * time.Second
	config.RetryDelaySeconds = config.RetryDelaySeconds * time.Second
	config.LLMRequestTimeout = config.LLMRequestTimeout * time.Second
	config.QueryTimeout = config.QueryTimeout * time.Second

	return &config
}
