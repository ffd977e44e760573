package console

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal"
	"github.com/tinyland-inc/driftbottle/pkg/config"
)

func newTestSession(t *testing.T, user string) (*session, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Bottle.DataDir = t.TempDir()
	store, err := internal.OpenStore(cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	return &session{handler: internal.NewHandler(cfg, store), user: user, name: "Name " + user, out: &out}, &out
}

func TestNewConsoleCommand(t *testing.T) {
	cmd := NewConsoleCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "console", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("user"))
	assert.NotNil(t, cmd.Flags().Lookup("name"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}

func TestSession_SimpleMode(t *testing.T) {
	s, out := newTestSession(t, "alice")

	s.simpleInteractiveMode(strings.NewReader("/扔瓶中信 漂流中\n\nnot a command\nexit\n/捡瓶中信\n"))

	text := out.String()
	assert.Contains(t, text, "l1")
	assert.Contains(t, text, s.handler.Router().Usage(), "plain chat shows usage")
	assert.Contains(t, text, "Goodbye!")
	assert.NotContains(t, text, "发送者", "input after exit is not read")
}

func TestSession_EOF(t *testing.T) {
	s, out := newTestSession(t, "alice")
	s.simpleInteractiveMode(strings.NewReader("/help"))
	assert.Contains(t, out.String(), s.handler.Router().Usage())
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestSession_ImageAttachment(t *testing.T) {
	s, out := newTestSession(t, "alice")
	img := filepath.Join(t.TempDir(), "shell.png")
	require.NoError(t, writePNG(img))

	assert.True(t, s.process("/扔瓶中信 看图 @image:"+img))
	assert.Contains(t, out.String(), "l1")

	bob, bobOut := newTestSession(t, "bob")
	bob.handler = s.handler
	assert.True(t, bob.process("/捡瓶中信"))
	assert.Contains(t, bobOut.String(), "看图")
	assert.Contains(t, bobOut.String(), "[image] inline image/png")
}

func TestSplitAttachments(t *testing.T) {
	text, media := splitAttachments("/throw_bottle  two  spaces")
	assert.Equal(t, "/throw_bottle  two  spaces", text)
	assert.Nil(t, media)

	text, media = splitAttachments("/throw_bottle hi @image:https://x/y.png @image:")
	assert.Equal(t, "/throw_bottle hi @image:", text)
	assert.Equal(t, []string{"https://x/y.png"}, media)
}

func TestDescribeMedia(t *testing.T) {
	assert.Equal(t, "https://x/y.png", describeMedia("https://x/y.png"))
	assert.True(t, strings.HasPrefix(describeMedia("data:image/jpeg;base64,AAAA"), "inline image/jpeg"))
}

func writePNG(path string) error {
	sig := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d}
	return os.WriteFile(path, sig, 0o600)
}
