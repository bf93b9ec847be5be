package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the agentbridge process configuration.
type Config struct {
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`
	Agent    AgentConfig    `json:"agent" mapstructure:"agent"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	Type        string  `json:"type" mapstructure:"type"` // openai, anthropic, ollama
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`

	// Settings carries provider specific extras, decoded with DecodeSettings.
	Settings map[string]any `json:"settings,omitempty" mapstructure:"settings"`
}

type AgentConfig struct {
	MaxTurns        int            `json:"max_turns" mapstructure:"max_turns"`
	ProviderTimeout time.Duration  `json:"provider_timeout" mapstructure:"provider_timeout"`
	Stream          bool           `json:"stream" mapstructure:"stream"`
	Features        FeaturesConfig `json:"features" mapstructure:"features"`
	ImageDir        string         `json:"image_dir" mapstructure:"image_dir"`
	Proverbs        []string       `json:"proverbs" mapstructure:"proverbs"`
}

type FeaturesConfig struct {
	Recipe bool `json:"recipe" mapstructure:"recipe"`
}

type ServerConfig struct {
	Host              string        `json:"host" mapstructure:"host"`
	Port              int           `json:"port" mapstructure:"port"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" mapstructure:"read_header_timeout"`
	LaneConcurrency   int           `json:"lane_concurrency" mapstructure:"lane_concurrency"`
	AllowedOrigins    []string      `json:"allowed_origins" mapstructure:"allowed_origins"`

	// DedupTTL is how long a finished run is replayed for a repeated run_id.
	DedupTTL time.Duration `json:"dedup_ttl" mapstructure:"dedup_ttl"`
	PIDFile  string        `json:"pid_file,omitempty" mapstructure:"pid_file"`
}

type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
	// SampleRatio is the fraction of root runs traced, 0 to 1.
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Type:        "openai",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			MaxTurns:        10,
			ProviderTimeout: 60 * time.Second,
			Stream:          true,
			Features:        FeaturesConfig{Recipe: true},
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			ReadHeaderTimeout: 10 * time.Second,
			LaneConcurrency:   1,
			DedupTTL:          5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{ServiceName: "agentbridge", SampleRatio: 1},
	}
}

// PIDPath returns the configured PID file, defaulting to
// ~/.agentbridge/agentbridge.pid.
func (s ServerConfig) PIDPath() string {
	if s.PIDFile != "" {
		return s.PIDFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "agentbridge.pid")
	}
	return filepath.Join(home, ".agentbridge", "agentbridge.pid")
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// String returns a JSON representation of the config with the API key masked.
func (c *Config) String() string {
	masked := *c
	if masked.Provider.APIKey != "" {
		masked.Provider.APIKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case "openai", "anthropic":
		if strings.TrimSpace(c.Provider.APIKey) == "" {
			return fmt.Errorf("provider.api_key is required for %s", c.Provider.Type)
		}
	case "ollama":
	default:
		return fmt.Errorf("invalid provider type %q (must be: openai, anthropic, ollama)", c.Provider.Type)
	}

	if err := RequireString(c.Provider.Model, "provider.model"); err != nil {
		return err
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.ProviderTimeout <= 0 {
		return fmt.Errorf("agent.provider_timeout must be positive, got %s", c.Agent.ProviderTimeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.LaneConcurrency <= 0 {
		return fmt.Errorf("server.lane_concurrency must be positive, got %d", c.Server.LaneConcurrency)
	}
	return nil
}
