package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Validator performs soft checks whose failures are reported as warnings
// rather than blocking startup.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var keyPrefixes = map[string]string{
	"anthropic": "sk-ant-",
	"openai":    "sk-",
}

// ValidateAPIKey checks the key shape expected by provider. Providers
// without keys, such as ollama, accept anything.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	prefix, ok := keyPrefixes[provider]
	if !ok {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}
	if !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("invalid %s API key format (should start with %s)", provider, prefix)
	}
	return nil
}

// ValidateBaseURL accepts an empty value or an absolute http(s) URL.
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL %q has no host", raw)
	}
	return nil
}

func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateImageDir checks that a configured image directory exists. The
// default catalog is used when it does not.
func (v *Validator) ValidateImageDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("agent.image_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("agent.image_dir %q is not a directory", dir)
	}
	return nil
}

// ValidateOrigins checks allowed WebSocket origins. "*" allows any origin.
func (v *Validator) ValidateOrigins(origins []string) error {
	for _, origin := range origins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.allowed_origins entry %q is not scheme://host", origin)
		}
	}
	return nil
}

// ValidateConfig collects every soft validation failure.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateAPIKey(cfg.Provider.APIKey, cfg.Provider.Type); err != nil {
		errors = append(errors, fmt.Errorf("provider: %w", err))
	}
	if err := v.ValidateBaseURL(cfg.Provider.BaseURL); err != nil {
		errors = append(errors, fmt.Errorf("provider: %w", err))
	}
	if err := v.ValidateTemperature(cfg.Provider.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("provider: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.Provider.MaxTokens); err != nil {
		errors = append(errors, fmt.Errorf("provider: %w", err))
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Agent.MaxTurns > 50 {
		errors = append(errors, fmt.Errorf("agent.max_turns is unusually high: %d", cfg.Agent.MaxTurns))
	}
	if cfg.Agent.ProviderTimeout > 10*time.Minute {
		errors = append(errors, fmt.Errorf("agent.provider_timeout is unusually long: %s", cfg.Agent.ProviderTimeout))
	}
	if err := v.ValidateImageDir(cfg.Agent.ImageDir); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateOrigins(cfg.Server.AllowedOrigins); err != nil {
		errors = append(errors, err)
	}

	return errors
}
