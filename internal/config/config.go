package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. QUICKHUB_LOG_LEVEL.
const Prefix = "QUICKHUB"

const (
	IsolationFrame   = "frame"
	IsolationProcess = "process"

	StorageFile   = "file"
	StorageMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Storage selects the tab store backend, file or memory.
	Storage     string `envconfig:"STORAGE" default:"file"`
	StoragePath string `envconfig:"STORAGE_PATH"`

	SearchURL string `envconfig:"SEARCH_URL" default:"https://www.google.com/search"`

	// Isolation selects where scripts run: frame (in-process) or process
	// (a child process).
	Isolation     string        `envconfig:"ISOLATION" default:"frame"`
	RetryInterval time.Duration `envconfig:"RETRY_INTERVAL" default:"200ms"`
	MaxRetries    int           `envconfig:"MAX_RETRIES" default:"50"`

	// MaxCallStack bounds recursion depth inside the sandbox. SandboxBuffer
	// is the capacity of the sandbox's message queues.
	MaxCallStack  int `envconfig:"MAX_CALL_STACK" default:"1024"`
	SandboxBuffer int `envconfig:"SANDBOX_BUFFER" default:"64"`

	ServerAddr string  `envconfig:"ADDR" default:"127.0.0.1:8080"`
	RunRate    float64 `envconfig:"RUN_RATE" default:"5"`
	RunBurst   int     `envconfig:"RUN_BURST" default:"10"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"warn"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`
	NoColor  bool   `envconfig:"NO_COLOR" default:"false"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Storage:       StorageFile,
		SearchURL:     "https://www.google.com/search",
		Isolation:     IsolationFrame,
		RetryInterval: 200 * time.Millisecond,
		MaxRetries:    50,
		MaxCallStack:  1024,
		SandboxBuffer: 64,
		ServerAddr:    "127.0.0.1:8080",
		RunRate:       5,
		RunBurst:      10,
		LogLevel:      "warn",
	}
}

func (c *Config) Validate() error {
	switch c.Isolation {
	case IsolationFrame, IsolationProcess:
	default:
		return fmt.Errorf("invalid isolation %q: want %s or %s", c.Isolation, IsolationFrame, IsolationProcess)
	}
	switch c.Storage {
	case StorageFile, StorageMemory:
	default:
		return fmt.Errorf("invalid storage %q: want %s or %s", c.Storage, StorageFile, StorageMemory)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %s", c.RetryInterval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxCallStack <= 0 {
		return fmt.Errorf("max call stack must be positive, got %d", c.MaxCallStack)
	}
	if c.SandboxBuffer <= 0 {
		return fmt.Errorf("sandbox buffer must be positive, got %d", c.SandboxBuffer)
	}
	return nil
}

// ResolvedStoragePath is StoragePath, or store.json under the user's config
// directory when unset.
func (c *Config) ResolvedStoragePath() (string, error) {
	if c.StoragePath != "" {
		return c.StoragePath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "quickhub", "store.json"), nil
}
