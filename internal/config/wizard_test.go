package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("accepts defaults and generates secret", func(t *testing.T) {
		in := strings.NewReader("\n\n\n\n\n\n")
		out := &bytes.Buffer{}

		cfg, err := NewWizard(in, out).Run(nil)

		require.NoError(t, err)
		assert.Equal(t, 8765, cfg.Gateway.Port)
		assert.Len(t, cfg.Gateway.SharedSecret, 64)
		assert.Equal(t, "gemini", cfg.Insight.Provider)
		assert.Equal(t, "gemini-2.5-flash", cfg.Insight.Model)
		assert.Empty(t, cfg.Insight.APIKey)
		assert.Contains(t, out.String(), "Configuration complete!")
	})

	t.Run("custom answers", func(t *testing.T) {
		answers := strings.Join([]string{
			"9000",
			"short",
			"0123456789abcdef0123",
			"anthropic",
			"AIza-not-anthropic",
			"sk-ant-test123",
			"",
			"debug",
		}, "\n") + "\n"
		out := &bytes.Buffer{}

		cfg, err := NewWizard(strings.NewReader(answers), out).Run(DefaultConfig())

		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Gateway.Port)
		assert.Equal(t, "0123456789abcdef0123", cfg.Gateway.SharedSecret)
		assert.Equal(t, "anthropic", cfg.Insight.Provider)
		assert.Equal(t, "claude-3-5-haiku-latest", cfg.Insight.Model)
		assert.Equal(t, "sk-ant-test123", cfg.Insight.APIKey)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "shared secret too short")
		assert.Contains(t, out.String(), "invalid Anthropic API key format")
	})

	t.Run("input ends early", func(t *testing.T) {
		_, err := NewWizard(strings.NewReader(""), &bytes.Buffer{}).Run(nil)
		assert.Error(t, err)
	})
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
