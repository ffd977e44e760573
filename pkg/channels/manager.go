package channels

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/config"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

// Manager owns the enabled channels and delivers outbound messages to them.
type Manager struct {
	bus      *bus.MessageBus
	mu       sync.RWMutex
	channels map[string]Channel
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewManager builds every channel enabled in cfg. The console is not a bus
// channel and is never built here.
func NewManager(cfg *config.Config, mb *bus.MessageBus) (*Manager, error) {
	m := &Manager{bus: mb, channels: make(map[string]Channel)}
	ch := cfg.Channels

	if ch.Telegram.Enabled {
		tc, err := NewTelegramChannel(ch.Telegram, mb)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		m.Register(tc)
	}
	if ch.Discord.Enabled {
		dc, err := NewDiscordChannel(ch.Discord, mb)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		m.Register(dc)
	}
	if ch.Slack.Enabled {
		sc, err := NewSlackChannel(ch.Slack, mb)
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		m.Register(sc)
	}
	if ch.OneBot.Enabled {
		oc, err := NewOneBotChannel(ch.OneBot, mb)
		if err != nil {
			return nil, fmt.Errorf("onebot: %w", err)
		}
		m.Register(oc)
	}

	return m, nil
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// GetEnabledChannels returns the registered channel names, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StartAll starts every channel and the outbound dispatcher. A channel that
// fails to start is logged and skipped; the error lists all failures.
func (m *Manager) StartAll(ctx context.Context) error {
	dctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	var errs []error
	for _, name := range m.GetEnabledChannels() {
		ch, _ := m.GetChannel(name)
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Channel failed to start", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		logger.InfoCF("channels", "Channel started", map[string]any{"channel": name})
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatchOutbound(dctx)
	}()

	return errors.Join(errs...)
}

func (m *Manager) StopAll(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	var errs []error
	for _, name := range m.GetEnabledChannels() {
		ch, _ := m.GetChannel(name)
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := m.Deliver(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Failed to deliver message", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}

// Deliver sends msg to its channel, splitting long text. Media rides on the
// last part.
func (m *Manager) Deliver(ctx context.Context, msg bus.OutboundMessage) error {
	ch, ok := m.GetChannel(msg.Channel)
	if !ok {
		return fmt.Errorf("unknown channel %q", msg.Channel)
	}

	limit := 0
	if lp, ok := ch.(MessageLengthProvider); ok {
		limit = lp.MaxMessageLength()
	}
	parts := SplitMessage(msg.Content, limit)
	for i, part := range parts {
		out := msg
		out.Content = part
		if i < len(parts)-1 {
			out.Media = nil
		}
		if i > 0 {
			out.ReplyTo = ""
		}
		if err := ch.Send(ctx, out); err != nil {
			return err
		}
	}
	return nil
}
