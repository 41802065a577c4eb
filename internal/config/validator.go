package config

import (
	"fmt"
	"strings"
)

const minSharedSecretLength = 16

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}

// ValidateProvider validates an insight provider name
func (v *Validator) ValidateProvider(provider string) error {
	if provider == "" {
		return nil // Use default
	}

	for _, valid := range validProviders {
		if provider == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}

// ValidateSharedSecret validates the gateway shared secret
func (v *Validator) ValidateSharedSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("shared secret cannot be empty")
	}
	if len(secret) < minSharedSecretLength {
		return fmt.Errorf("shared secret too short (min %d characters), got %d", minSharedSecretLength, len(secret))
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate gateway
	if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
		errors = append(errors, fmt.Errorf("gateway: %w", err))
	}
	if cfg.Gateway.SharedSecret != "" {
		if err := v.ValidateSharedSecret(cfg.Gateway.SharedSecret); err != nil {
			errors = append(errors, fmt.Errorf("gateway: %w", err))
		}
	}
	if cfg.Gateway.RequestsPerMinute < 0 {
		errors = append(errors, fmt.Errorf("gateway requests_per_minute must be >= 0"))
	}
	if cfg.Gateway.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("gateway max_concurrent must be >= 0"))
	}
	if cfg.Gateway.ShutdownTimeout < 0 {
		errors = append(errors, fmt.Errorf("gateway shutdown_timeout must be >= 0"))
	}

	// Validate insight
	if err := v.ValidateProvider(cfg.Insight.Provider); err != nil {
		errors = append(errors, fmt.Errorf("insight: %w", err))
	}
	if err := v.ValidateModel(cfg.Insight.Model); err != nil {
		errors = append(errors, fmt.Errorf("insight: %w", err))
	}
	if cfg.Insight.APIKey != "" && cfg.Insight.Provider != "" {
		if err := v.ValidateAPIKey(cfg.Insight.APIKey, cfg.Insight.Provider); err != nil {
			errors = append(errors, fmt.Errorf("insight: %w", err))
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging max_size must be >= 0"))
	}

	return errors
}
