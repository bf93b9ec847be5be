package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from stdin.
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard over the given streams.
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

var defaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4-20250514",
	"ollama":    "llama3.1",
}

// Run asks for the provider, credentials, model and log level, starting
// from DefaultConfig.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== agentbridge configuration ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	for {
		fmt.Fprintf(w.out, "Provider (openai/anthropic/ollama) [%s]: ", cfg.Provider.Type)
		provider, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if provider == "" {
			break
		}
		provider = strings.ToLower(provider)
		if _, ok := defaultModels[provider]; !ok {
			fmt.Fprintf(w.out, "Error: unknown provider %q\n", provider)
			continue
		}
		cfg.Provider.Type = provider
		break
	}
	cfg.Provider.Model = defaultModels[cfg.Provider.Type]

	if cfg.Provider.Type != "ollama" {
		for {
			fmt.Fprintf(w.out, "%s API key: ", cfg.Provider.Type)
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateAPIKey(key, cfg.Provider.Type); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Provider.APIKey = key
			break
		}
	}

	fmt.Fprint(w.out, "Base URL (press Enter for the provider default): ")
	baseURL, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Provider.BaseURL = baseURL

	fmt.Fprintf(w.out, "Model [%s]: ", cfg.Provider.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Provider.Model = model
	}

	fmt.Fprint(w.out, "Enable the recipe tool? (y/n) [y]: ")
	recipe, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Agent.Features.Recipe = recipe == "" || strings.EqualFold(recipe, "y")

	fmt.Fprint(w.out, "Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// readLine returns the trimmed next line. A final line without a newline
// is accepted.
func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
