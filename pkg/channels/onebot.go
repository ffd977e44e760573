package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/config"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

// OneBotChannel speaks OneBot v11 over a forward websocket. Images it
// receives are QQ hosted and marked qq_url.
type OneBotChannel struct {
	*BaseChannel
	url         string
	accessToken string
	reconnect   time.Duration
	dialer      *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type onebotSegment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

type onebotEvent struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	MessageID   json.Number     `json:"message_id"`
	UserID      json.Number     `json:"user_id"`
	GroupID     json.Number     `json:"group_id"`
	SelfID      json.Number     `json:"self_id"`
	Message     json.RawMessage `json:"message"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`

	// Present on action responses.
	Echo    string `json:"echo"`
	Status  string `json:"status"`
	RetCode int    `json:"retcode"`
}

type onebotAction struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

func NewOneBotChannel(cfg config.OneBotConfig, mb *bus.MessageBus) (*OneBotChannel, error) {
	if cfg.WSUrl == "" {
		return nil, errors.New("ws_url is required")
	}
	reconnect := time.Duration(cfg.ReconnectInterval) * time.Second
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &OneBotChannel{
		BaseChannel: NewBaseChannel("onebot", mb, cfg.AllowFrom,
			WithImageKind(string(bottle.ImagePlatformURL)),
			WithImageToken(cfg.ImageToken),
		),
		url:         cfg.WSUrl,
		accessToken: cfg.AccessToken,
		reconnect:   reconnect,
		dialer:      websocket.DefaultDialer,
	}, nil
}

func (c *OneBotChannel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.SetRunning(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
	return nil
}

func (c *OneBotChannel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.SetRunning(false)
	return nil
}

func (c *OneBotChannel) run(ctx context.Context) {
	for {
		if err := c.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			logger.WarnCF("onebot", "Connection lost", map[string]any{
				"url":   c.url,
				"error": err.Error(),
				"retry": c.reconnect.String(),
			})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnect):
		}
	}
}

func (c *OneBotChannel) connectAndRead(ctx context.Context) error {
	header := http.Header{}
	if c.accessToken != "" {
		header.Set("Authorization", "Bearer "+c.accessToken)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	logger.InfoCF("onebot", "Connected", map[string]any{"url": c.url})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		c.handleFrame(ctx, data)
	}
}

func (c *OneBotChannel) handleFrame(ctx context.Context, data []byte) {
	var ev onebotEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.DebugCF("onebot", "Ignoring malformed frame", map[string]any{"error": err.Error()})
		return
	}
	if ev.Echo != "" {
		if ev.Status == "failed" {
			logger.WarnCF("onebot", "Action failed", map[string]any{"echo": ev.Echo, "retcode": ev.RetCode})
		}
		return
	}
	if ev.PostType != "message" {
		return
	}

	segments := parseOneBotMessage(ev.Message)
	content, media := flattenSegments(segments, ev.SelfID.String())

	peer := bus.Peer{Kind: "direct", ID: ev.UserID.String()}
	chatID := ev.UserID.String()
	if ev.MessageType == "group" {
		peer = bus.Peer{Kind: "group", ID: ev.GroupID.String()}
		chatID = ev.GroupID.String()
	}
	name := ev.Sender.Card
	if name == "" {
		name = ev.Sender.Nickname
	}

	c.HandleMessage(ctx, peer, ev.MessageID.String(), ev.UserID.String(), name, chatID, content, media)
}

// parseOneBotMessage accepts both the array form and the CQ-code string form.
func parseOneBotMessage(raw json.RawMessage) []onebotSegment {
	if len(raw) == 0 {
		return nil
	}
	var segments []onebotSegment
	if err := json.Unmarshal(raw, &segments); err == nil {
		return segments
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return parseCQString(s)
}

var cqCode = regexp.MustCompile(`\[CQ:([a-z_]+)((?:,[^,\]]+)*)\]`)

func parseCQString(s string) []onebotSegment {
	var segments []onebotSegment
	last := 0
	for _, loc := range cqCode.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			segments = append(segments, textSegment(cqUnescape(s[last:loc[0]])))
		}
		seg := onebotSegment{Type: s[loc[2]:loc[3]], Data: map[string]string{}}
		for _, kv := range strings.Split(strings.TrimPrefix(s[loc[4]:loc[5]], ","), ",") {
			if k, v, ok := strings.Cut(kv, "="); ok {
				seg.Data[k] = cqUnescape(v)
			}
		}
		segments = append(segments, seg)
		last = loc[1]
	}
	if last < len(s) {
		segments = append(segments, textSegment(cqUnescape(s[last:])))
	}
	return segments
}

var cqUnescaper = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")

func cqUnescape(s string) string {
	return cqUnescaper.Replace(s)
}

func textSegment(text string) onebotSegment {
	return onebotSegment{Type: "text", Data: map[string]string{"text": text}}
}

// flattenSegments joins text segments and collects image urls. Mentions of
// the bot itself are dropped so "@bot /pick_bottle" parses as a command.
func flattenSegments(segments []onebotSegment, selfID string) (string, []string) {
	var text strings.Builder
	var media []string
	for _, seg := range segments {
		switch seg.Type {
		case "text":
			text.WriteString(seg.Data["text"])
		case "image":
			if u := seg.Data["url"]; u != "" {
				media = append(media, u)
			} else if f := seg.Data["file"]; strings.HasPrefix(f, "http") {
				media = append(media, f)
			}
		case "at":
			if seg.Data["qq"] != selfID {
				text.WriteString("@" + seg.Data["qq"])
			}
		}
	}
	return strings.TrimSpace(text.String()), media
}

func (c *OneBotChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	target, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	var segments []onebotSegment
	if msg.ReplyTo != "" {
		segments = append(segments, onebotSegment{Type: "reply", Data: map[string]string{"id": msg.ReplyTo}})
	}
	if msg.Content != "" {
		segments = append(segments, textSegment(msg.Content))
	}
	for _, ref := range msg.Media {
		file := ref
		if strings.HasPrefix(ref, "data:") {
			_, payload := bottle.SplitDataURI(ref)
			file = "base64://" + payload
		}
		segments = append(segments, onebotSegment{Type: "image", Data: map[string]string{"file": file}})
	}

	action := onebotAction{Echo: uuid.New().String()}
	if msg.Peer.IsGroup() {
		action.Action = "send_group_msg"
		action.Params = map[string]any{"group_id": target, "message": segments}
	} else {
		action.Action = "send_private_msg"
		action.Params = map[string]any{"user_id": target, "message": segments}
	}
	return c.write(action)
}

func (c *OneBotChannel) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.conn.WriteJSON(v)
}
