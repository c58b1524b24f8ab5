package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all polymath configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	LLM       LLMConfig       `toml:"llm"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Interests InterestsConfig `toml:"interests"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LLMConfig struct {
	Provider       string  `toml:"provider"` // "claude-cli", "anthropic", "ollama"
	Model          string  `toml:"model"`    // e.g. "haiku", "sonnet"
	OllamaURL      string  `toml:"ollama_url"`
	OllamaModel    string  `toml:"ollama_model"`    // e.g. "llama3.2"
	EmbeddingModel string  `toml:"embedding_model"` // e.g. "nomic-embed-text"; empty uses TF-IDF
	AnthropicKey   string  `toml:"anthropic_key"`
	RequestsPerMin float64 `toml:"requests_per_min"` // 0 = unlimited
	Burst          int     `toml:"burst"`
}

// SynthesisConfig tunes the suggestion engine. Zero values fall back to the
// engine's built-in defaults.
type SynthesisConfig struct {
	BatchSize               int     `toml:"batch_size"`
	WildcardFrequency       int     `toml:"wildcard_frequency"`
	CreativeFrequency       int     `toml:"creative_frequency"`
	MaxAttempts             int     `toml:"max_attempts"`
	RelaxAfterAttempt       int     `toml:"relax_after_attempt"`
	HistoryLimit            int     `toml:"history_limit"`
	HistoryThreshold        float64 `toml:"history_threshold"`
	BatchThreshold          float64 `toml:"batch_threshold"`
	RelaxedHistoryThreshold float64 `toml:"relaxed_history_threshold"`
	NoteSampleSize          int     `toml:"note_sample_size"`
	MaxContextInterests     int     `toml:"max_context_interests"`
	Temperature             float64 `toml:"temperature"`
	CreativeTemperature     float64 `toml:"creative_temperature"`
	MaxTokens               int     `toml:"max_tokens"`
}

type InterestsConfig struct {
	WindowDays  int `toml:"window_days"`
	MinMentions int `toml:"min_mentions"`
}

type TelemetryConfig struct {
	Endpoint    string `toml:"endpoint"` // OTLP/gRPC collector, empty disables tracing
	ServiceName string `toml:"service_name"`
	Insecure    bool   `toml:"insecure"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:  "claude-cli",
			Model:     "haiku",
			OllamaURL: "http://localhost:11434",
			Burst:     1,
		},
		Synthesis: SynthesisConfig{
			BatchSize:               10,
			WildcardFrequency:       4,
			CreativeFrequency:       3,
			MaxAttempts:             10,
			RelaxAfterAttempt:       7,
			HistoryLimit:            100,
			HistoryThreshold:        0.85,
			BatchThreshold:          0.75,
			RelaxedHistoryThreshold: 0.90,
			NoteSampleSize:          50,
			MaxContextInterests:     5,
			Temperature:             0.7,
			CreativeTemperature:     0.9,
			MaxTokens:               1024,
		},
		Interests: InterestsConfig{
			WindowDays:  30,
			MinMentions: 3,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "polymath",
			Insecure:    true,
		},
	}
}

// DefaultPath returns ~/.polymath/config.toml, or $POLYMATH_CONFIG if set.
func DefaultPath() string {
	if p := os.Getenv("POLYMATH_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".polymath", "config.toml")
}

// Load reads the config at path over the defaults. A missing file is not an
// error. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config file: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config to path, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the config.
func (c *Config) ApplyEnv() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.AnthropicKey = key
		c.LLM.Provider = "anthropic"
	}
	if p := os.Getenv("POLYMATH_DB"); p != "" {
		c.Database.Path = p
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	s := c.Synthesis
	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size cannot be negative: %d", s.BatchSize)
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts cannot be negative: %d", s.MaxAttempts)
	}
	if s.MaxAttempts > 0 && s.RelaxAfterAttempt > s.MaxAttempts {
		return fmt.Errorf("relax_after_attempt %d exceeds max_attempts %d", s.RelaxAfterAttempt, s.MaxAttempts)
	}
	for name, v := range map[string]float64{
		"history_threshold":         s.HistoryThreshold,
		"batch_threshold":           s.BatchThreshold,
		"relaxed_history_threshold": s.RelaxedHistoryThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1]: %g", name, v)
		}
	}
	if s.RelaxedHistoryThreshold > 0 && s.RelaxedHistoryThreshold < s.HistoryThreshold {
		return fmt.Errorf("relaxed_history_threshold %g is stricter than history_threshold %g",
			s.RelaxedHistoryThreshold, s.HistoryThreshold)
	}
	if c.Interests.WindowDays < 0 || c.Interests.MinMentions < 0 {
		return fmt.Errorf("interests window and min_mentions cannot be negative")
	}
	if c.LLM.RequestsPerMin < 0 {
		return fmt.Errorf("requests_per_min cannot be negative: %g", c.LLM.RequestsPerMin)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
