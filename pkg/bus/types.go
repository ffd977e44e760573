package bus

// Peer identifies where a message came from inside a channel.
type Peer struct {
	Kind string `json:"kind"` // "direct" | "group" | "channel" | ""
	ID   string `json:"id"`
}

// IsGroup reports whether replies go to a shared room rather than a user.
func (p Peer) IsGroup() bool {
	return p.Kind == "group" || p.Kind == "channel"
}

type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Media      []string          `json:"media,omitempty"` // image URLs or data URIs
	Peer       Peer              `json:"peer"`
	MessageID  string            `json:"message_id,omitempty"`
	MediaScope string            `json:"media_scope,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Metadata keys set by channels.
const (
	MetaSenderName = "sender_name"
	MetaToken      = "platform_token" // appended to qq_url images on display
	MetaImageKind  = "image_kind"     // set to "qq_url" when media is platform hosted
)

// SenderName returns the display name a channel attached, or the raw id.
func (m InboundMessage) SenderName() string {
	if name := m.Metadata[MetaSenderName]; name != "" {
		return name
	}
	return m.SenderID
}

type OutboundMessage struct {
	Channel string   `json:"channel"`
	ChatID  string   `json:"chat_id"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
	Peer    Peer     `json:"peer"`
	ReplyTo string   `json:"reply_to,omitempty"` // platform message id
}
