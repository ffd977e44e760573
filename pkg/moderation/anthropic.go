package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-haiku-4-5"

	anthropicSystemPrompt = "You review user messages for a public drift bottle game. " +
		"Answer with exactly one word: SAFE if the content is acceptable for a general " +
		"audience, UNSAFE if it contains sexual content, violence, hate, harassment, " +
		"self-harm, illegal activity, personal data or spam."
)

type AnthropicConfig struct {
	APIKey  string
	APIBase string
	Model   string
}

// Anthropic asks a Claude model to classify content as SAFE or UNSAFE.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api_key is required", ErrMissingCredentials)
	}
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(normalizeBaseURL(cfg.APIBase)),
	)
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{client: &client, model: model}, nil
}

// CheckText implements bottle.Moderator.
func (a *Anthropic) CheckText(ctx context.Context, text string) (bool, error) {
	return a.classify(ctx, anthropic.NewTextBlock("Message:\n"+text))
}

// CheckImage implements bottle.Moderator.
func (a *Anthropic) CheckImage(ctx context.Context, img bottle.Image) (bool, error) {
	var block anthropic.ContentBlockParamUnion
	if img.Type == bottle.ImageBase64 {
		mediaType, payload := bottle.SplitDataURI(img.Data)
		block = anthropic.NewImageBlockBase64(mediaType, payload)
	} else {
		block = anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: img.Data})
	}
	return a.classify(ctx, block, anthropic.NewTextBlock("Classify this image."))
}

func (a *Anthropic) classify(ctx context.Context, blocks ...anthropic.ContentBlockParamUnion) (bool, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 8,
		System:    []anthropic.TextBlockParam{{Text: anthropicSystemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return false, fmt.Errorf("claude moderation call: %w", err)
	}
	return parseVerdict(resp), nil
}

// parseVerdict reads the first text block; anything but SAFE fails.
func parseVerdict(resp *anthropic.Message) bool {
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		fields := strings.Fields(block.AsText().Text)
		if len(fields) == 0 {
			return false
		}
		word := strings.Trim(strings.ToUpper(fields[0]), ".,!:;\"'")
		return word == "SAFE"
	}
	return false
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultAnthropicBaseURL
	}

	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultAnthropicBaseURL
	}

	return base
}

var _ bottle.Moderator = (*Anthropic)(nil)
