package channels

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/config"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

const telegramMaxMessageLength = 4096

type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegramChannel(cfg config.TelegramConfig, mb *bus.MessageBus) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}

	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", mb, cfg.AllowFrom, WithMaxMessageLength(telegramMaxMessageLength)),
		bot:         bot,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		cancel()
		return fmt.Errorf("starting long polling: %w", err)
	}
	c.cancel = cancel
	c.SetRunning(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for update := range updates {
			if update.Message != nil {
				c.handleMessage(pollCtx, update.Message)
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.SetRunning(false)
	return nil
}

func (c *TelegramChannel) handleMessage(ctx context.Context, m *telego.Message) {
	if m.From == nil || m.From.IsBot {
		return
	}

	content := m.Text
	if content == "" {
		content = m.Caption
	}
	content = stripBotMention(content)

	var media []string
	if n := len(m.Photo); n > 0 {
		// Sizes are ascending; take the largest.
		if u, err := c.fileURL(ctx, m.Photo[n-1].FileID); err == nil {
			media = append(media, u)
		} else {
			logger.WarnCF("telegram", "Failed to resolve photo", map[string]any{"error": err.Error()})
		}
	}

	senderID := strconv.FormatInt(m.From.ID, 10)
	if m.From.Username != "" {
		senderID += "|" + m.From.Username
	}
	name := strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	if name == "" {
		name = m.From.Username
	}

	peer := bus.Peer{Kind: "direct", ID: strconv.FormatInt(m.Chat.ID, 10)}
	if m.Chat.Type == telego.ChatTypeGroup || m.Chat.Type == telego.ChatTypeSupergroup {
		peer.Kind = "group"
	}

	c.HandleMessage(ctx, peer, strconv.Itoa(m.MessageID), senderID, name,
		strconv.FormatInt(m.Chat.ID, 10), content, media)
}

func (c *TelegramChannel) fileURL(ctx context.Context, fileID string) (string, error) {
	f, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", err
	}
	return c.bot.FileDownloadURL(f.FilePath), nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}
	replyTo, _ := strconv.Atoi(msg.ReplyTo)

	params := tu.Message(tu.ID(chatID), msg.Content)
	if replyTo > 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	for i, ref := range msg.Media {
		file, err := telegramFile(ref, i)
		if err != nil {
			return err
		}
		if _, err := c.bot.SendPhoto(ctx, tu.Photo(tu.ID(chatID), file)); err != nil {
			return fmt.Errorf("sending photo: %w", err)
		}
	}
	return nil
}

func telegramFile(ref string, i int) (telego.InputFile, error) {
	if !strings.HasPrefix(ref, "data:") {
		return tu.FileFromURL(ref), nil
	}
	_, payload := bottle.SplitDataURI(ref)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return telego.InputFile{}, fmt.Errorf("decoding image: %w", err)
	}
	return tu.File(tu.NameReader(bytes.NewReader(data), fmt.Sprintf("bottle-%d.jpg", i))), nil
}

// stripBotMention turns "/cmd@my_bot args" into "/cmd args".
func stripBotMention(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	word, rest, _ := strings.Cut(text, " ")
	if at := strings.Index(word, "@"); at > 0 {
		word = word[:at]
	}
	if rest == "" {
		return word
	}
	return word + " " + rest
}
