package channels

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/config"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

const slackMaxMessageLength = 4000

type SlackChannel struct {
	*BaseChannel
	api    *slack.Client
	socket *socketmode.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup

	namesMu sync.Mutex
	names   map[string]string
}

func NewSlackChannel(cfg config.SlackConfig, mb *bus.MessageBus, opts ...slack.Option) (*SlackChannel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, errors.New("bot_token and app_token are required")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, errors.New("app_token must start with xapp-")
	}

	api := slack.New(cfg.BotToken, append([]slack.Option{slack.OptionAppLevelToken(cfg.AppToken)}, opts...)...)
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", mb, cfg.AllowFrom, WithMaxMessageLength(slackMaxMessageLength)),
		api:         api,
		socket:      socketmode.New(api),
		names:       make(map[string]string),
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.SetRunning(true)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		if err := c.socket.RunContext(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCF("slack", "Socket mode stopped", map[string]any{"error": err.Error()})
		}
	}()
	go func() {
		defer c.wg.Done()
		c.consume(runCtx)
	}()
	return nil
}

func (c *SlackChannel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.SetRunning(false)
	return nil
}

func (c *SlackChannel) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			payload, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				c.socket.Ack(*evt.Request)
			}
			if ev, ok := payload.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				c.handleMessage(ctx, ev)
			}
		}
	}
}

func (c *SlackChannel) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// Edits, joins and bot echoes arrive with a subtype or bot id.
	if ev.BotID != "" || ev.SubType != "" || ev.User == "" {
		return
	}

	peer := bus.Peer{Kind: "channel", ID: ev.Channel}
	if ev.ChannelType == "im" {
		peer.Kind = "direct"
	}
	c.HandleMessage(ctx, peer, ev.TimeStamp, ev.User, c.userName(ctx, ev.User), ev.Channel, ev.Text, nil)
}

func (c *SlackChannel) userName(ctx context.Context, userID string) string {
	c.namesMu.Lock()
	name, ok := c.names[userID]
	c.namesMu.Unlock()
	if ok {
		return name
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		logger.DebugCF("slack", "User lookup failed", map[string]any{"user": userID, "error": err.Error()})
		return userID
	}
	name = user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = user.Name
	}

	c.namesMu.Lock()
	c.names[userID] = name
	c.namesMu.Unlock()
	return name
}

func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}

	var blocks []slack.Block
	var uploads []string
	for _, ref := range msg.Media {
		if strings.HasPrefix(ref, "data:") {
			uploads = append(uploads, ref)
			continue
		}
		blocks = append(blocks, slack.NewImageBlock(ref, "bottle image", "", nil))
	}
	if len(blocks) > 0 {
		text := slack.NewTextBlockObject(slack.PlainTextType, msg.Content, false, false)
		blocks = append([]slack.Block{slack.NewSectionBlock(text, nil, nil)}, blocks...)
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}

	if _, _, err := c.api.PostMessageContext(ctx, msg.ChatID, opts...); err != nil {
		return fmt.Errorf("posting message: %w", err)
	}

	for i, ref := range uploads {
		mediaType, payload := bottle.SplitDataURI(ref)
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("decoding image: %w", err)
		}
		_, err = c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
			Channel:         msg.ChatID,
			Reader:          bytes.NewReader(data),
			FileSize:        len(data),
			Filename:        fmt.Sprintf("bottle-%d.%s", i, strings.TrimPrefix(mediaType, "image/")),
			ThreadTimestamp: msg.ReplyTo,
		})
		if err != nil {
			return fmt.Errorf("uploading image: %w", err)
		}
	}
	return nil
}
