package auth

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/driftbottle/pkg/config"
)

func TestNewAuthCommand(t *testing.T) {
	cmd := NewAuthCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "auth", cmd.Use)

	login, _, err := cmd.Find([]string{"login"})
	require.NoError(t, err)
	assert.NotNil(t, login.Flags().Lookup("channel"))
	assert.True(t, login.HasExample())
}

func TestLoginSavesToken(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DRIFTBOTTLE_HOME", home)

	cmd := NewAuthCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("123:abc\n"))
	cmd.SetArgs([]string{"login", "--channel", "telegram"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Saved telegram token")

	cfg, err := config.LoadConfig(filepath.Join(home, "config.json"))
	require.NoError(t, err)
	assert.True(t, cfg.Channels.Telegram.Enabled)
	assert.Equal(t, "123:abc", cfg.Channels.Telegram.Token)
}

func TestLoginRequiresChannel(t *testing.T) {
	t.Setenv("DRIFTBOTTLE_HOME", t.TempDir())
	cmd := NewAuthCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"login"})
	assert.Error(t, cmd.Execute())
}
