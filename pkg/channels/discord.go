package channels

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/config"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

const discordMaxMessageLength = 2000

type DiscordChannel struct {
	*BaseChannel
	session     *discordgo.Session
	mentionOnly bool
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, mb *bus.MessageBus) (*DiscordChannel, error) {
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	c := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", mb, cfg.AllowFrom, WithMaxMessageLength(discordMaxMessageLength)),
		session:     session,
		mentionOnly: cfg.MentionOnly,
	}
	session.AddHandler(c.onMessageCreate)
	return c, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	if err := c.session.Open(); err != nil {
		c.cancel()
		return fmt.Errorf("opening gateway: %w", err)
	}
	c.SetRunning(true)
	return nil
}

func (c *DiscordChannel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.SetRunning(false)
	return c.session.Close()
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := m.Content
	if m.GuildID != "" && c.mentionOnly {
		if s.State == nil || s.State.User == nil || !mentions(m.Mentions, s.State.User.ID) {
			return
		}
		content = stripUserMention(content, s.State.User.ID)
	}

	var media []string
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			media = append(media, a.URL)
		}
	}

	peer := bus.Peer{Kind: "direct", ID: m.ChannelID}
	if m.GuildID != "" {
		peer.Kind = "channel"
	}
	name := m.Author.GlobalName
	if name == "" {
		name = m.Author.Username
	}

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	c.HandleMessage(ctx, peer, m.ID, m.Author.ID+"|"+m.Author.Username, name, m.ChannelID, content, media)
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
	}
	for i, ref := range msg.Media {
		if !strings.HasPrefix(ref, "data:") {
			send.Embeds = append(send.Embeds, &discordgo.MessageEmbed{Image: &discordgo.MessageEmbedImage{URL: ref}})
			continue
		}
		mediaType, payload := bottle.SplitDataURI(ref)
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("decoding image: %w", err)
		}
		send.Files = append(send.Files, &discordgo.File{
			Name:        fmt.Sprintf("bottle-%d.%s", i, strings.TrimPrefix(mediaType, "image/")),
			ContentType: mediaType,
			Reader:      bytes.NewReader(data),
		})
	}

	if _, err := c.session.ChannelMessageSendComplex(msg.ChatID, send, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	logger.DebugCF("discord", "Message sent", map[string]any{"chat_id": msg.ChatID})
	return nil
}

func mentions(users []*discordgo.User, id string) bool {
	for _, u := range users {
		if u != nil && u.ID == id {
			return true
		}
	}
	return false
}

func stripUserMention(content, id string) string {
	content = strings.ReplaceAll(content, "<@"+id+">", "")
	content = strings.ReplaceAll(content, "<@!"+id+">", "")
	return strings.TrimSpace(content)
}
