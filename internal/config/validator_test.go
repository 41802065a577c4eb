package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		key      string
		provider string
		wantErr  bool
	}{
		{"valid anthropic key", "sk-ant-test123", "anthropic", false},
		{"invalid anthropic key", "invalid-key", "anthropic", true},
		{"valid openai key", "sk-test123", "openai", false},
		{"invalid openai key", "invalid-key", "openai", true},
		{"valid gemini key", "AIzaSyTest123", "gemini", false},
		{"invalid gemini key", "sk-test123", "gemini", true},
		{"empty key", "", "gemini", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAPIKey(tt.key, tt.provider)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateProvider(""))
	assert.NoError(t, v.ValidateProvider("gemini"))
	assert.NoError(t, v.ValidateProvider("openai"))
	assert.NoError(t, v.ValidateProvider("anthropic"))
	assert.Error(t, v.ValidateProvider("cohere"))
}

func TestValidateSharedSecret(t *testing.T) {
	v := NewValidator()

	assert.Error(t, v.ValidateSharedSecret(""))
	assert.Error(t, v.ValidateSharedSecret("short"))
	assert.NoError(t, v.ValidateSharedSecret(strings.Repeat("x", 16)))
}

func TestValidatePort(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePort(0))
	assert.NoError(t, v.ValidatePort(8765))
	assert.Error(t, v.ValidatePort(-1))
	assert.Error(t, v.ValidatePort(65536))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gateway.SharedSecret = strings.Repeat("s", 32)
		cfg.Insight.APIKey = "AIzaSyTest123"

		assert.Empty(t, v.ValidateConfig(cfg))
	})

	t.Run("multiple errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gateway.Port = 99999
		cfg.Gateway.SharedSecret = "short"
		cfg.Insight.Model = ""
		cfg.Insight.APIKey = "sk-wrong"
		cfg.Logging.Level = "verbose"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})
}
