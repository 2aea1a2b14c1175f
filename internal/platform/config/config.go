// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Synthesis modes.
const (
	SynthesisTemplate = "template"
	SynthesisAI       = "ai"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig
	Backend        string
	Database       DatabaseConfig
	Cache          CacheConfig
	Synthesis      SynthesisConfig
	AI             AIConfig
	Upload         UploadConfig
	Log            LogConfig
	CurriculumPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis connection settings. When enabled it
// backs the shared resource cache and AI token budgets.
type CacheConfig struct {
	Enabled bool
	URL     string
}

// SynthesisConfig selects how detailed explanations are produced.
type SynthesisConfig struct {
	Mode string // "template" or "ai"
}

// AIConfig holds configuration for the OpenAI-compatible providers.
type AIConfig struct {
	OpenAI      APIKeyConfig
	DeepSeek    APIKeyConfig
	OpenRouter  APIKeyConfig
	Ollama      OllamaConfig
	Model       string
	TokenBudget int // per path; 0 is unlimited
}

// APIKeyConfig holds a hosted provider's key.
type APIKeyConfig struct {
	APIKey string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
}

// UploadConfig limits resource uploads.
type UploadConfig struct {
	MaxBytes int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LEARN_SERVER_PORT", 8080),
			Host: envStr("LEARN_SERVER_HOST", "0.0.0.0"),
		},
		Backend: strings.ToLower(envStr("LEARN_BACKEND", BackendMemory)),
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			Enabled: envBool("LEARN_CACHE_ENABLED", false),
			URL:     envStr("LEARN_CACHE_URL", "redis://localhost:6379"),
		},
		Synthesis: SynthesisConfig{
			Mode: strings.ToLower(envStr("LEARN_SYNTHESIS_MODE", SynthesisTemplate)),
		},
		AI: AIConfig{
			OpenAI:     APIKeyConfig{APIKey: envStr("LEARN_AI_OPENAI_API_KEY", "")},
			DeepSeek:   APIKeyConfig{APIKey: envStr("LEARN_AI_DEEPSEEK_API_KEY", "")},
			OpenRouter: APIKeyConfig{APIKey: envStr("LEARN_AI_OPENROUTER_API_KEY", "")},
			Ollama: OllamaConfig{
				Enabled: envBool("LEARN_AI_OLLAMA_ENABLED", false),
				URL:     envStr("LEARN_AI_OLLAMA_URL", "http://localhost:11434"),
			},
			Model:       envStr("LEARN_AI_MODEL", ""),
			TokenBudget: envInt("LEARN_AI_TOKEN_BUDGET", 0),
		},
		Upload: UploadConfig{
			MaxBytes: envInt("LEARN_UPLOAD_MAX_BYTES", 5<<20),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: strings.ToLower(envStr("LEARN_LOG_FORMAT", "json")),
		},
		CurriculumPath: envStr("LEARN_CURRICULUM_PATH", "./paths"),
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("LEARN_DATABASE_URL is required when LEARN_BACKEND is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("LEARN_BACKEND must be 'memory' or 'postgres', got %q", c.Backend)
	}

	switch c.Synthesis.Mode {
	case SynthesisTemplate:
	case SynthesisAI:
		if !c.HasAIProvider() {
			return fmt.Errorf("at least one AI provider must be configured when LEARN_SYNTHESIS_MODE is %q", SynthesisAI)
		}
	default:
		return fmt.Errorf("LEARN_SYNTHESIS_MODE must be 'template' or 'ai', got %q", c.Synthesis.Mode)
	}

	if c.AI.TokenBudget < 0 {
		return fmt.Errorf("LEARN_AI_TOKEN_BUDGET must not be negative, got %d", c.AI.TokenBudget)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("LEARN_UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.OpenAI.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.OpenRouter.APIKey != "" ||
		c.AI.Ollama.Enabled
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
