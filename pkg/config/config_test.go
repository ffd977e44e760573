package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500, cfg.Bottle.MaxTextLength)
	assert.Equal(t, 1, cfg.Bottle.MaxImages)
	assert.False(t, cfg.Bottle.UseBase64)
	assert.Empty(t, cfg.Bottle.APIBaseURL)
	assert.False(t, cfg.ContentSafety.Enabled)
	assert.Equal(t, "/", cfg.Commands.Prefix)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, bottle.DefaultFileName, filepath.Base(cfg.DataFile()))
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Bottle, cfg.Bottle)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"bottle": {"max_images": 3, "api_base_url": "https://bottles.example"},
		"channels": {"telegram": {"enabled": true, "token": "t", "allow_from": [123, "alice"]}}
	}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Bottle.MaxImages)
	assert.Equal(t, 500, cfg.Bottle.MaxTextLength, "unset fields keep defaults")
	assert.Equal(t, "https://bottles.example", cfg.Bottle.APIBaseURL)
	assert.True(t, cfg.Channels.Telegram.Enabled)
	assert.Equal(t, FlexibleStringSlice{"123", "alice"}, cfg.Channels.Telegram.AllowFrom)
	assert.Equal(t, bottle.Limits{MaxTextLength: 500, MaxImages: 3}, cfg.Limits())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DRIFTBOTTLE_BOTTLE_MAX_TEXT_LENGTH", "42")
	t.Setenv("DRIFTBOTTLE_CONTENT_SAFETY_ENABLED", "true")
	t.Setenv("DRIFTBOTTLE_CONTENT_SAFETY_PROVIDER", "openai")
	t.Setenv("DRIFTBOTTLE_CONTENT_SAFETY_OPENAI_API_KEY", "sk-env")
	t.Setenv("DRIFTBOTTLE_CONTENT_SAFETY_BAIDU_SECRET_KEY", "baidu-secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Bottle.MaxTextLength)
	assert.True(t, cfg.ContentSafety.Enabled)

	mc := cfg.Moderation()
	assert.Equal(t, "openai", mc.Provider)
	assert.Equal(t, "sk-env", mc.OpenAI.APIKey)
	assert.Equal(t, "baidu-secret", mc.Baidu.SecretKey)
	assert.Equal(t, 10*time.Second, mc.Baidu.Timeout)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{bottle`), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bottle.MaxImages = -1
	cfg.Bottle.APIBaseURL = "ftp://x"
	cfg.Backup.Enabled = true
	cfg.Backup.Cron = "every day"
	cfg.Backup.Keep = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"max_images", "api_base_url", "backup.cron", "backup.keep"} {
		assert.True(t, strings.Contains(err.Error(), want), "missing %q in %v", want, err)
	}

	cfg = DefaultConfig()
	cfg.Backup.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Channels.Discord.Token = "discord-token"
	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "discord-token", loaded.Channels.Discord.Token)
}

func TestFlexibleStringSlice(t *testing.T) {
	var f FlexibleStringSlice
	require.NoError(t, json.Unmarshal([]byte(`["a", 12, true]`), &f))
	assert.Equal(t, FlexibleStringSlice{"a", "12", "true"}, f)

	assert.Error(t, json.Unmarshal([]byte(`"a"`), &f))
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "x"), expandHome("~/x"))
	assert.Equal(t, "/abs", expandHome("/abs"))
	assert.Equal(t, "", expandHome(""))
}

func TestLoadDhallConfig_NotInstalled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := LoadDhallConfig("config.dhall")
	assert.ErrorIs(t, err, ErrDhallNotAvailable)
}
