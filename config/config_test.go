package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Addr())
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.EqualValues(t, 10<<20, cfg.Server.MaxUploadBytes)
	assert.Equal(t, "yolo_weights.onnx", cfg.Model.WeightsPath)
	assert.Equal(t, 4, cfg.Model.PoolSize)
	assert.Equal(t, "llama-v3p1-405b-instruct", cfg.Advisory.Model)
	assert.Equal(t, 3000, cfg.Advisory.MaxTokens)
	assert.Equal(t, 0.0, cfg.Advisory.Temperature)
	assert.Equal(t, "https://api.fireworks.ai", cfg.Advisory.BaseURL)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 8081
  debug: true
model:
  weights_path: /models/tomato.onnx
  pool_size: 2
advisory:
  model: mixtral-8x7b-instruct
  temperature: 0.4
  timeout: 15s
`), 0o644))

	t.Setenv("API_PORT", "9090")
	t.Setenv("FIREWORKS_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "/models/tomato.onnx", cfg.Model.WeightsPath)
	assert.Equal(t, 2, cfg.Model.PoolSize)
	assert.Equal(t, "mixtral-8x7b-instruct", cfg.Advisory.Model)
	assert.Equal(t, 0.4, cfg.Advisory.Temperature)
	assert.Equal(t, 15*time.Second, cfg.Advisory.Timeout)
	assert.Equal(t, 3000, cfg.Advisory.MaxTokens)
	assert.Equal(t, "secret", cfg.Advisory.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("API_PORT", "70000")
	_, err := Load("")
	assert.ErrorContains(t, err, "invalid port")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestUsageListsEnvironment(t *testing.T) {
	usage := Usage()
	assert.Contains(t, usage, "FIREWORKS_API_KEY")
	assert.Contains(t, usage, "YOLO_WEIGHTS_PATH")
}
