package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/orders.db"`

	// Listener
	ListenerInterval  time.Duration `env:"LISTENER_INTERVAL" envDefault:"30s"`
	ListenerAutostart bool          `env:"LISTENER_AUTOSTART" envDefault:"true"`
	RestartDelay      time.Duration `env:"RESTART_DELAY" envDefault:"1s"`

	// IMAP
	IMAPAuthTimeout     time.Duration `env:"IMAP_AUTH_TIMEOUT" envDefault:"10s"`
	IMAPConnectAttempts int           `env:"IMAP_CONNECT_ATTEMPTS" envDefault:"3"`
	IMAPConnectDelay    time.Duration `env:"IMAP_CONNECT_DELAY" envDefault:"2s"`

	// Object storage
	StorageDir       string        `env:"STORAGE_DIR" envDefault:"./data/objects"`
	StoragePublicURL string        `env:"STORAGE_PUBLIC_URL" envDefault:"http://localhost:8080/objects"`
	UploadAttempts   int           `env:"UPLOAD_ATTEMPTS" envDefault:"3"`
	UploadDelay      time.Duration `env:"UPLOAD_DELAY" envDefault:"1s"`

	// Extraction service (OpenAI-compatible chat completions)
	LLMAPIURL  string        `env:"LLM_API_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey  string        `env:"LLM_API_KEY,required,notEmpty"`
	LLMModel   string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// Duplicate filter (optional)
	RedisURL string `env:"REDIS_URL"` // e.g., redis://localhost:6379/0

	// HTTP control API
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Mailbox seed file (optional)
	MailboxSeedPath string `env:"MAILBOX_SEED_PATH"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// DedupEnabled returns true if the Redis duplicate filter is configured
func (c *Config) DedupEnabled() bool {
	return c.RedisURL != ""
}

// Load loads configuration from environment variables.
// envFiles are loaded first; a missing .env is ignored.
func Load(envFiles ...string) (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ListenerInterval <= 0 {
		return nil, fmt.Errorf("LISTENER_INTERVAL must be positive, got %s", cfg.ListenerInterval)
	}
	if cfg.IMAPConnectAttempts < 1 {
		return nil, fmt.Errorf("IMAP_CONNECT_ATTEMPTS must be at least 1, got %d", cfg.IMAPConnectAttempts)
	}
	if cfg.UploadAttempts < 1 {
		return nil, fmt.Errorf("UPLOAD_ATTEMPTS must be at least 1, got %d", cfg.UploadAttempts)
	}

	return cfg, nil
}
