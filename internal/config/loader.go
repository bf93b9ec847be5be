package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AGENTBRIDGE_PROVIDER_API_KEY.
const EnvPrefix = "AGENTBRIDGE"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file when present, then applies environment
// overrides. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := newViper()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to the loader's path; the format follows the file extension.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("no config path available")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("provider", map[string]any{
		"type":        cfg.Provider.Type,
		"model":       cfg.Provider.Model,
		"api_key":     cfg.Provider.APIKey,
		"base_url":    cfg.Provider.BaseURL,
		"temperature": cfg.Provider.Temperature,
		"max_tokens":  cfg.Provider.MaxTokens,
		"settings":    cfg.Provider.Settings,
	})
	v.Set("agent", map[string]any{
		"max_turns":        cfg.Agent.MaxTurns,
		"provider_timeout": cfg.Agent.ProviderTimeout.String(),
		"stream":           cfg.Agent.Stream,
		"features":         map[string]any{"recipe": cfg.Agent.Features.Recipe},
		"image_dir":        cfg.Agent.ImageDir,
		"proverbs":         cfg.Agent.Proverbs,
	})
	v.Set("server", map[string]any{
		"host":                cfg.Server.Host,
		"port":                cfg.Server.Port,
		"read_header_timeout": cfg.Server.ReadHeaderTimeout.String(),
		"lane_concurrency":    cfg.Server.LaneConcurrency,
		"allowed_origins":     cfg.Server.AllowedOrigins,
		"dedup_ttl":           cfg.Server.DedupTTL.String(),
		"pid_file":            cfg.Server.PIDFile,
	})
	v.Set("logging", map[string]any{
		"level":      cfg.Logging.Level,
		"file":       cfg.Logging.File,
		"pretty":     cfg.Logging.Pretty,
		"redaction":  cfg.Logging.Redaction,
		"audit_file": cfg.Logging.AuditFile,
	})
	v.Set("metrics", map[string]any{"enabled": cfg.Metrics.Enabled})
	v.Set("tracing", map[string]any{
		"enabled":      cfg.Tracing.Enabled,
		"service_name": cfg.Tracing.ServiceName,
		"sample_ratio": cfg.Tracing.SampleRatio,
	})

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path, defaulting to
// ~/.agentbridge/agentbridge.yaml.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentbridge", "agentbridge.yaml")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key gets a default so AutomaticEnv can see it during Unmarshal.
	d := DefaultConfig()
	v.SetDefault("provider.type", d.Provider.Type)
	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.api_key", d.Provider.APIKey)
	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.temperature", d.Provider.Temperature)
	v.SetDefault("provider.max_tokens", d.Provider.MaxTokens)
	v.SetDefault("agent.max_turns", d.Agent.MaxTurns)
	v.SetDefault("agent.provider_timeout", d.Agent.ProviderTimeout)
	v.SetDefault("agent.stream", d.Agent.Stream)
	v.SetDefault("agent.features.recipe", d.Agent.Features.Recipe)
	v.SetDefault("agent.image_dir", d.Agent.ImageDir)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.lane_concurrency", d.Server.LaneConcurrency)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.dedup_ttl", d.Server.DedupTTL)
	v.SetDefault("server.pid_file", d.Server.PIDFile)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.audit_file", d.Logging.AuditFile)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	return v
}
