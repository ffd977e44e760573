package moderation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
)

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string // defaults to omni-moderation-latest
}

// OpenAI checks content with the OpenAI moderation endpoint. Content is
// compliant when no result is flagged.
type OpenAI struct {
	client openai.Client
	model  openai.ModerationModel
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api_key is required", ErrMissingCredentials)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	model := openai.ModerationModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.ModerationModelOmniModerationLatest
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// CheckText implements bottle.Moderator.
func (o *OpenAI) CheckText(ctx context.Context, text string) (bool, error) {
	return o.moderate(ctx, openai.ModerationNewParamsInputUnion{
		OfString: openai.String(text),
	})
}

// CheckImage implements bottle.Moderator.
func (o *OpenAI) CheckImage(ctx context.Context, img bottle.Image) (bool, error) {
	u := img.Data
	if img.Type == bottle.ImageBase64 {
		u = bottle.DataURI(img.Data)
	}
	return o.moderate(ctx, openai.ModerationNewParamsInputUnion{
		OfModerationMultiModalArray: []openai.ModerationMultiModalInputUnionParam{{
			OfImageURL: &openai.ModerationImageURLInputParam{
				ImageURL: openai.ModerationImageURLInputImageURLParam{URL: u},
			},
		}},
	})
}

func (o *OpenAI) moderate(ctx context.Context, input openai.ModerationNewParamsInputUnion) (bool, error) {
	resp, err := o.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: input,
		Model: o.model,
	})
	if err != nil {
		return false, fmt.Errorf("openai moderation: %w", err)
	}
	for _, r := range resp.Results {
		if r.Flagged {
			return false, nil
		}
	}
	return true, nil
}

var _ bottle.Moderator = (*OpenAI)(nil)
