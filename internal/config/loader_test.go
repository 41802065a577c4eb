package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, 8765, cfg.Gateway.Port)
		assert.Equal(t, "gemini", cfg.Insight.Provider)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"gateway": {
				"port": 9100,
				"shared_secret": "file-secret-0123456789"
			},
			"insight": {
				"provider": "anthropic",
				"model": "claude-3-5-haiku-latest"
			}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Gateway.Port)
		assert.Equal(t, "file-secret-0123456789", cfg.Gateway.SharedSecret)
		assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
		assert.Equal(t, "anthropic", cfg.Insight.Provider)
		assert.Equal(t, "claude-3-5-haiku-latest", cfg.Insight.Model)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"gateway":{"port":9100}}`), 0644))

		t.Setenv("LUMOS_GATEWAY_PORT", "9200")
		t.Setenv("LUMOS_GATEWAY_SHARED_SECRET", "env-secret-0123456789")
		t.Setenv("LUMOS_INSIGHT_MODEL", "gemini-2.0-flash")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, 9200, cfg.Gateway.Port)
		assert.Equal(t, "env-secret-0123456789", cfg.Gateway.SharedSecret)
		assert.Equal(t, "gemini-2.0-flash", cfg.Insight.Model)
	})

	t.Run("set default data dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()

		require.NoError(t, err)
		assert.Contains(t, cfg.DataDir, ".lumos")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{invalid json`), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "relay.json")

	cfg := DefaultConfig()
	cfg.Gateway.Port = 9300
	cfg.Gateway.SharedSecret = "saved-secret-0123456789"
	cfg.Insight.Provider = "openai"
	cfg.Insight.Model = "gpt-4o-mini"
	cfg.Logging.Level = "debug"

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9300, loaded.Gateway.Port)
	assert.Equal(t, "saved-secret-0123456789", loaded.Gateway.SharedSecret)
	assert.Equal(t, "openai", loaded.Insight.Provider)
	assert.Equal(t, "gpt-4o-mini", loaded.Insight.Model)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestLoaderWatch(t *testing.T) {
	t.Run("requires a loaded file", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, loader.Watch(func(*Config, error) {}))

		_, err := loader.Load()
		require.NoError(t, err)
		assert.Error(t, loader.Watch(func(*Config, error) {}))
	})

	t.Run("reports edits", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "relay.json")
		write := func(model, level string) {
			content := `{
				"gateway": {"shared_secret": "watch-secret-0123456789"},
				"insight": {"provider": "openai", "model": "` + model + `"},
				"logging": {"level": "` + level + `"}
			}`
			require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
		}
		write("gpt-4o-mini", "info")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", cfg.Insight.Model)

		changes := make(chan *Config, 16)
		require.NoError(t, loader.Watch(func(cfg *Config, err error) {
			if err == nil {
				changes <- cfg
			}
		}))

		write("gpt-4o", "debug")

		timeout := time.After(5 * time.Second)
		for {
			select {
			case cfg := <-changes:
				if cfg.Insight.Model != "gpt-4o" {
					continue
				}
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "watch-secret-0123456789", cfg.Gateway.SharedSecret)
				return
			case <-timeout:
				t.Fatal("config change not reported")
			}
		}
	})
}

func TestGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path.json")
		assert.Equal(t, "/custom/path.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		path := NewLoader("").GetConfigPath()
		assert.Contains(t, path, filepath.Join(".lumos", "relay.json"))
	})
}
