package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr  string
	DBDriver    string
	DBPath      string
	DatabaseURL string

	AIServiceURL         string
	EmbeddingTextBackend string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIEmbeddingModel string
	EmbeddingTimeout     time.Duration
	EmbeddingCacheSize   int

	PhotoPath     string
	PublicBaseURL string

	RetentionWindow time.Duration
	SweepInterval   time.Duration

	LogLevel string
	LogFile  string
}

// Load reads the configuration from the environment. Callers that want a
// .env file honoured load it into the environment first. Durations take
// Go syntax ("90s", "6h") or whole days ("14d").
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		DBDriver:             getEnv("DB_DRIVER", "sqlite"),
		DBPath:               getEnv("DB_PATH", "/data/lostfound.db"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		AIServiceURL:         getEnv("AI_SERVICE_URL", "http://localhost:8000"),
		EmbeddingTextBackend: getEnv("EMBEDDING_TEXT_BACKEND", "clip"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		PhotoPath:            getEnv("PHOTO_LOCAL_PATH", "/data/photos"),
		PublicBaseURL:        getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              getEnv("LOG_FILE", ""),
	}

	var err error
	if cfg.EmbeddingTimeout, err = getDuration("EMBEDDING_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetentionWindow, err = getDuration("RETENTION_WINDOW", 14*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EmbeddingCacheSize, err = getInt("EMBEDDING_CACHE_SIZE", 1024); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q, must be sqlite or postgres", c.DBDriver)
	}

	switch c.EmbeddingTextBackend {
	case "clip":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_TEXT_BACKEND=openai")
		}
	default:
		return fmt.Errorf("invalid EMBEDDING_TEXT_BACKEND %q, must be clip or openai", c.EmbeddingTextBackend)
	}

	if c.RetentionWindow <= 0 {
		return fmt.Errorf("RETENTION_WINDOW must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	d, err := ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// ParseDuration is time.ParseDuration plus a whole-day form such as "14d".
func ParseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func getInt(key string, defaultVal int) (int, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
