package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the main relay configuration
type Config struct {
	// Gateway
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Insight generation
	Insight InsightConfig `json:"insight" mapstructure:"insight"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// GatewayConfig holds bridge server configuration
type GatewayConfig struct {
	Host              string `json:"host" mapstructure:"host"`
	Port              int    `json:"port" mapstructure:"port"`
	SharedSecret      string `json:"shared_secret" mapstructure:"shared_secret"`
	RequestsPerMinute int    `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int    `json:"max_concurrent" mapstructure:"max_concurrent"`
	ShutdownTimeout   int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// InsightConfig holds the generative provider settings
type InsightConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // gemini, openai, anthropic
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
}

var validProviders = []string{"gemini", "openai", "anthropic"}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:              "127.0.0.1",
			Port:              8765,
			SharedSecret:      "",
			RequestsPerMinute: 60,
			MaxConcurrent:     10,
			ShutdownTimeout:   30,
		},
		Insight: InsightConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Gateway.SharedSecret != "" {
		masked.Gateway.SharedSecret = "***"
	}
	if masked.Insight.APIKey != "" {
		masked.Insight.APIKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Gateway.RequestsPerMinute < 0 {
		return fmt.Errorf("gateway requests_per_minute must be >= 0")
	}
	if c.Gateway.MaxConcurrent < 0 {
		return fmt.Errorf("gateway max_concurrent must be >= 0")
	}

	provider := strings.ToLower(strings.TrimSpace(c.Insight.Provider))
	if provider != "" {
		valid := false
		for _, vp := range validProviders {
			if provider == vp {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid insight provider %s (must be: %s)", c.Insight.Provider, strings.Join(validProviders, ", "))
		}
	}

	return nil
}

// ValidateServe checks the configuration needed to run the bridge server
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Gateway.SharedSecret == "" {
		return fmt.Errorf("gateway shared_secret is required to serve (set LUMOS_GATEWAY_SHARED_SECRET or run configure)")
	}
	return nil
}

// GatewayURL returns the WebSocket endpoint clients dial
func (c *Config) GatewayURL() string {
	host := c.Gateway.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s:%d/ws", host, c.Gateway.Port)
}

// HealthURL returns the HTTP health endpoint of the gateway
func (c *Config) HealthURL() string {
	host := c.Gateway.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/healthz", host, c.Gateway.Port)
}
