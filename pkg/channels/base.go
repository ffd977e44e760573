// Package channels connects chat platforms to the message bus.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithMaxMessageLength sets the maximum message length (in runes) for a channel.
// Longer replies are split by the Manager. A value of 0 means no limit.
func WithMaxMessageLength(n int) BaseChannelOption {
	return func(c *BaseChannel) { c.maxMessageLength = n }
}

// WithImageKind marks inbound media from this channel, e.g. as qq_url.
func WithImageKind(kind string) BaseChannelOption {
	return func(c *BaseChannel) { c.imageKind = kind }
}

// WithImageToken attaches a platform token used when showing this channel's
// hosted images.
func WithImageToken(token string) BaseChannelOption {
	return func(c *BaseChannel) { c.imageToken = token }
}

// MessageLengthProvider is an opt-in interface that channels implement
// to advertise their maximum message length.
type MessageLengthProvider interface {
	MaxMessageLength() int
}

type BaseChannel struct {
	bus              *bus.MessageBus
	running          atomic.Bool
	name             string
	allowList        []string
	maxMessageLength int
	imageKind        string
	imageToken       string
}

func NewBaseChannel(
	name string,
	bus *bus.MessageBus,
	allowList []string,
	opts ...BaseChannelOption,
) *BaseChannel {
	bc := &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// MaxMessageLength returns the maximum message length (in runes) for this channel.
// A value of 0 means no limit.
func (c *BaseChannel) MaxMessageLength() int {
	return c.maxMessageLength
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	// Compound ids look like "123456|username".
	idPart, userPart, _ := strings.Cut(senderID, "|")

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if senderID == allowed || senderID == trimmed || idPart == trimmed {
			return true
		}
		if userPart != "" && userPart == trimmed {
			return true
		}
	}

	return false
}

// HandleMessage publishes an inbound message from an allowed sender.
// senderID is stripped of any "|username" suffix before it reaches the bus.
func (c *BaseChannel) HandleMessage(
	ctx context.Context,
	peer bus.Peer,
	messageID, senderID, senderName, chatID, content string,
	media []string,
) {
	if !c.IsAllowed(senderID) {
		logger.DebugCF(c.name, "Dropping message from sender not in allow list", map[string]any{
			"sender_id": senderID,
		})
		return
	}

	id, _, _ := strings.Cut(senderID, "|")
	metadata := map[string]string{bus.MetaSenderName: senderName}
	if c.imageKind != "" {
		metadata[bus.MetaImageKind] = c.imageKind
	}
	if c.imageToken != "" {
		metadata[bus.MetaToken] = c.imageToken
	}

	msg := bus.InboundMessage{
		Channel:    c.name,
		SenderID:   id,
		ChatID:     chatID,
		Content:    content,
		Media:      media,
		Peer:       peer,
		MessageID:  messageID,
		MediaScope: BuildMediaScope(c.name, chatID, messageID),
		Metadata:   metadata,
	}

	if err := c.bus.PublishInbound(ctx, msg); err != nil {
		logger.WarnCF(c.name, "Failed to publish inbound message", map[string]any{"error": err.Error()})
	}
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// BuildMediaScope constructs a scope key identifying one inbound message.
func BuildMediaScope(channel, chatID, messageID string) string {
	id := messageID
	if id == "" {
		id = uuid.New().String()
	}
	return channel + ":" + chatID + ":" + id
}

// SplitMessage breaks text into chunks of at most limit runes, preferring
// line breaks.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
