package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, v.GetInt("server.port"))
	assert.Equal(t, "http://localhost:3100", v.GetString("loki.url"))
	assert.Equal(t, 15*time.Minute, v.GetDuration("plugins.collector.interval"))
	assert.Equal(t, 0.3, v.GetFloat64("plugins.insight.ewma_alpha"))
	assert.Equal(t, "file", v.GetString("plugins.insight.backend"))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logsentinel.yaml")
	content := []byte("loki:\n  url: http://loki:3100\nplugins:\n  insight:\n    max_identities: 50\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	v, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://loki:3100", v.GetString("loki.url"))
	assert.Equal(t, 50, v.GetInt("plugins.insight.max_identities"))
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, v.GetInt("plugins.insight.identity_floor"))
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loki: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LS_SERVER_PORT", "9191")
	t.Setenv("LOKI_URL", "http://env-loki:3100")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/hook")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	v, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, v.GetInt("server.port"))
	assert.Equal(t, "http://env-loki:3100", v.GetString("loki.url"))
	assert.Equal(t, "https://discord.example/hook", v.GetString("plugins.webhook.url"))
	assert.Equal(t, "sk-test", v.GetString("plugins.llm.openai.api_key"))
}

func TestViperConfig_Sub(t *testing.T) {
	v := viper.New()
	v.Set("plugins.webhook.url", "http://hook")
	v.Set("plugins.webhook.timeout", "5s")

	cfg := New(v)
	sub := cfg.Sub("plugins.webhook")
	assert.Equal(t, "http://hook", sub.GetString("url"))
	assert.Equal(t, 5*time.Second, sub.GetDuration("timeout"))

	missing := cfg.Sub("plugins.absent")
	require.NotNil(t, missing)
	assert.False(t, missing.IsSet("url"))
}

func TestViperConfig_SubSeesEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/hook")

	v, err := Load("")
	require.NoError(t, err)

	var cfg struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	}
	require.NoError(t, New(v).Sub("plugins.webhook").Unmarshal(&cfg))
	assert.Equal(t, "https://discord.example/hook", cfg.URL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}
