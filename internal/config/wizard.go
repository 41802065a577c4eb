package config

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard reading answers from in
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// GenerateSecret returns a random hex-encoded shared secret
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Run runs the interactive configuration wizard starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== Lumos Relay Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	// Gateway
	fmt.Fprintln(w.out, "Gateway:")
	fmt.Fprintf(w.out, "Port [%d]: ", cfg.Gateway.Port)
	portText, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if portText != "" {
		port, err := strconv.Atoi(portText)
		if err != nil || validator.ValidatePort(port) != nil {
			fmt.Fprintf(w.out, "Warning: invalid port %q, keeping %d\n", portText, cfg.Gateway.Port)
		} else {
			cfg.Gateway.Port = port
		}
	}

	for {
		fmt.Fprint(w.out, "Shared secret (press Enter to generate): ")
		secret, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if secret == "" {
			secret, err = GenerateSecret()
			if err != nil {
				return nil, err
			}
			fmt.Fprintln(w.out, "Generated a new shared secret")
		} else if err := validator.ValidateSharedSecret(secret); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}

		cfg.Gateway.SharedSecret = secret
		break
	}

	fmt.Fprintln(w.out)

	// Insight provider
	fmt.Fprintln(w.out, "Insight provider options: gemini, openai, anthropic")
	fmt.Fprintf(w.out, "Provider [%s]: ", cfg.Insight.Provider)
	provider, err := w.readLine()
	if err != nil {
		return nil, err
	}
	provider = strings.ToLower(provider)
	if provider != "" {
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Insight.Provider)
		} else if provider != cfg.Insight.Provider {
			cfg.Insight.Provider = provider
			cfg.Insight.Model = defaultModelFor(provider)
		}
	}

	for {
		fmt.Fprint(w.out, "API key (press Enter to use the API_KEY environment variable): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, cfg.Insight.Provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}

		cfg.Insight.APIKey = key
		break
	}

	fmt.Fprintf(w.out, "Model [%s]: ", cfg.Insight.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Insight.Model = model
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	fmt.Fprintf(w.out, "Log level (debug/info/warn/error) [%s]: ", cfg.Logging.Level)
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func defaultModelFor(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	default:
		return "gemini-2.5-flash"
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
