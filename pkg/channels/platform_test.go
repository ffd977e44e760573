package channels

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/config"
)

func TestStripBotMention(t *testing.T) {
	assert.Equal(t, "/pick_bottle", stripBotMention("/pick_bottle@drift_bot"))
	assert.Equal(t, "/throw_bottle hi @friend", stripBotMention("/throw_bottle@drift_bot hi @friend"))
	assert.Equal(t, "hello @bot", stripBotMention("hello @bot"))
}

func TestTelegramFile(t *testing.T) {
	f, err := telegramFile("https://img.example/a.png", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/a.png", f.URL)

	f, err = telegramFile("data:image/png;base64,iVBORw0KGgo=", 1)
	require.NoError(t, err)
	require.NotNil(t, f.File)
	assert.Equal(t, "bottle-1.jpg", f.File.Name())

	_, err = telegramFile("data:image/png;base64,!!!", 0)
	assert.Error(t, err)
}

func TestNewTelegramChannel_Validation(t *testing.T) {
	_, err := NewTelegramChannel(config.TelegramConfig{}, bus.NewMessageBus())
	assert.Error(t, err)

	_, err = NewTelegramChannel(config.TelegramConfig{Token: "123:abc", Proxy: "://bad"}, bus.NewMessageBus())
	assert.Error(t, err)
}

func TestDiscordMentions(t *testing.T) {
	users := []*discordgo.User{{ID: "1"}, nil, {ID: "99"}}
	assert.True(t, mentions(users, "99"))
	assert.False(t, mentions(users, "2"))

	assert.Equal(t, "/pick_bottle", stripUserMention("<@99> /pick_bottle", "99"))
	assert.Equal(t, "/count", stripUserMention("<@!99>/count", "99"))
}

func TestNewSlackChannel_Validation(t *testing.T) {
	_, err := NewSlackChannel(config.SlackConfig{BotToken: "xoxb-1"}, bus.NewMessageBus())
	assert.Error(t, err)

	_, err = NewSlackChannel(config.SlackConfig{BotToken: "xoxb-1", AppToken: "xoxb-2"}, bus.NewMessageBus())
	assert.Error(t, err)

	ch, err := NewSlackChannel(config.SlackConfig{BotToken: "xoxb-1", AppToken: "xapp-1"}, bus.NewMessageBus())
	require.NoError(t, err)
	assert.Equal(t, "slack", ch.Name())
	assert.Equal(t, slackMaxMessageLength, ch.MaxMessageLength())
}
