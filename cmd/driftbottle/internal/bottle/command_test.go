package bottle

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("DRIFTBOTTLE_HOME", home)
	t.Setenv("DRIFTBOTTLE_BOTTLE_DATA_DIR", filepath.Join(home, "data"))
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewBottleCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestNewBottleCommand(t *testing.T) {
	cmd := NewBottleCommand()
	require.NotNil(t, cmd)

	assert.Equal(t, "bottle", cmd.Use)
	assert.True(t, cmd.HasExample())
	assert.True(t, cmd.HasSubCommands())
	assert.NotNil(t, cmd.PersistentFlags().Lookup("user"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("name"))

	for _, name := range []string{"throw", "pick", "view", "count", "list"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.NotNil(t, sub.RunE, name)
	}

	throw, _, _ := cmd.Find([]string{"throw"})
	assert.NotNil(t, throw.Flags().Lookup("cloud"))
	assert.NotNil(t, throw.Flags().Lookup("image"))
}

func TestBottleCommand_ThrowThenPick(t *testing.T) {
	setupHome(t)

	out := execute(t, "throw", "hello", "sea", "--user", "alice", "--name", "Alice")
	assert.Contains(t, out, "l1")

	out = execute(t, "count", "--user", "bob")
	assert.Contains(t, out, "1")

	out = execute(t, "pick", "--user", "bob")
	assert.Contains(t, out, "hello sea")
	assert.Contains(t, out, "Alice")

	out = execute(t, "view", "l1", "--user", "bob")
	assert.Contains(t, out, "hello sea")

	out = execute(t, "list", "--user", "bob")
	assert.Contains(t, out, "l1")
}

func TestBottleCommand_PickEmptySea(t *testing.T) {
	setupHome(t)
	out := execute(t, "pick", "--user", "bob")
	assert.NotEmpty(t, out)
	assert.NotContains(t, out, "l1")
}
