package commands

import (
	"context"
	"errors"
	"time"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

// Request is one command invocation after parsing.
type Request struct {
	Channel    string
	ChatID     string
	SenderID   string // qualified as channel:id
	SenderName string
	Args       string
	Images     []bottle.Image
	Token      string // platform access token for qq_url images
}

type Reply struct {
	Text   string
	Images []bottle.Image
}

type Handler struct {
	store  *bottle.Store
	router *Router
	images *imageCollector
}

type Option func(*Handler)

func WithPrefix(prefix string) Option {
	return func(h *Handler) { h.router = NewRouter(prefix) }
}

// WithBase64 stores inbound images inline instead of by URL.
func WithBase64(v bool) Option {
	return func(h *Handler) { h.images.useBase64 = v }
}

func NewHandler(store *bottle.Store, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		router: NewRouter(DefaultPrefix),
		images: newImageCollector(false, 15*time.Second),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() *Router { return h.router }

// QualifiedID namespaces a platform user id by channel so the same numeric
// id on two platforms never collides.
func QualifiedID(channel, senderID string) string {
	if channel == "" {
		return senderID
	}
	return channel + ":" + senderID
}

// Handle runs msg if it is a command. The second result is false for
// ordinary chat, which gets no reply.
func (h *Handler) Handle(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, bool) {
	name, args, ok := h.router.Parse(msg.Content)
	if !ok {
		return nil, false
	}

	req := Request{
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		SenderID:   QualifiedID(msg.Channel, msg.SenderID),
		SenderName: msg.SenderName(),
		Args:       args,
		Token:      msg.Metadata[bus.MetaToken],
	}
	if name == ThrowLocal || name == ThrowCloud {
		req.Images = h.images.collect(ctx, msg.Media, bottle.ImageKind(msg.Metadata[bus.MetaImageKind]))
	}

	logger.DebugCF("commands", "Handling command", map[string]any{
		"command":   name,
		"channel":   msg.Channel,
		"sender_id": req.SenderID,
	})

	reply := h.Execute(ctx, name, req)
	out := &bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply.Text,
		Peer:    msg.Peer,
		ReplyTo: msg.MessageID,
	}
	for _, img := range reply.Images {
		out.Media = append(out.Media, img.URI())
	}
	return out, true
}

// Execute runs a canonical command for req.
func (h *Handler) Execute(ctx context.Context, name string, req Request) Reply {
	switch name {
	case ThrowCloud:
		return h.throw(ctx, req, bottle.Cloud)
	case ThrowLocal:
		return h.throw(ctx, req, bottle.Local)
	case PickCloud:
		return h.pick(ctx, req, bottle.Cloud)
	case PickLocal:
		return h.pick(ctx, req, bottle.Local)
	case ViewPicked:
		return h.viewPicked(req)
	case Count:
		return h.count(ctx, req)
	case ListPicked:
		return Reply{Text: PickedList(h.store.ListPicked(req.SenderID))}
	default:
		return Reply{Text: h.router.Usage()}
	}
}

func (h *Handler) throw(ctx context.Context, req Request, origin bottle.Origin) Reply {
	if origin == bottle.Cloud && req.Args == "" && len(req.Images) == 0 {
		return Reply{Text: msgEmptyCloud}
	}

	if err := h.store.Limits().Check(req.Args, req.Images); err != nil {
		var ve *bottle.ValidationError
		if errors.As(err, &ve) {
			return Reply{Text: limitMessage(ve)}
		}
		return Reply{Text: err.Error()}
	}

	id, err := h.store.Add(ctx, bottle.Draft{
		Content:  req.Args,
		Images:   req.Images,
		Sender:   req.SenderName,
		SenderID: req.SenderID,
	}, origin)
	if err != nil {
		if origin == bottle.Cloud {
			return Reply{Text: msgCloudFailed}
		}
		return Reply{Text: msgThrowFailed}
	}
	if origin == bottle.Cloud {
		return Reply{Text: thrownCloud(id)}
	}
	return Reply{Text: thrownLocal(id)}
}

func (h *Handler) pick(ctx context.Context, req Request, origin bottle.Origin) Reply {
	res, err := h.store.Pick(ctx, req.SenderID, origin, bottle.WithViewToken(req.Token))
	if err != nil {
		return Reply{Text: msgPickFailed}
	}
	switch res.Status {
	case bottle.Empty:
		return Reply{Text: msgNoBottles}
	case bottle.Blocked:
		return Reply{Text: msgBlocked}
	}
	return cardReply(res.Bottle.View(req.Token), msgPicked)
}

func (h *Handler) viewPicked(req Request) Reply {
	id := req.Args
	b, ok := h.store.GetPicked(req.SenderID, id)
	if !ok {
		if id != "" {
			return Reply{Text: notFound(id)}
		}
		return Reply{Text: msgNonePicked}
	}
	return cardReply(b.View(req.Token), msgViewPicked)
}

func (h *Handler) count(ctx context.Context, req Request) Reply {
	active, picked := h.store.Counts(req.SenderID)
	cloud, err := h.store.CloudActiveCount(ctx)
	if err != nil || cloud < 0 {
		return Reply{Text: msgCountFailed + "\n" + seaCount(active, picked)}
	}
	return Reply{Text: seaCount(active+cloud, picked)}
}

func cardReply(b bottle.Bottle, heading string) Reply {
	return Reply{Text: Card(b, heading), Images: b.Images}
}

// Run consumes inbound messages until ctx ends or the bus closes, publishing
// a reply for every command.
func (h *Handler) Run(ctx context.Context, mb *bus.MessageBus) error {
	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}

		out, ok := h.Handle(ctx, msg)
		if !ok {
			continue
		}
		if err := mb.PublishOutbound(ctx, *out); err != nil {
			logger.WarnCF("commands", "Failed to publish reply", map[string]any{
				"channel": out.Channel,
				"chat_id": out.ChatID,
				"error":   err.Error(),
			})
		}
	}
}
