// Package moderation provides content safety backends for bottles.
//
// Every backend implements bottle.Moderator. A bottle that fails any check is
// withheld as a whole by bottle.Screen; nothing is redacted.
package moderation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
)

const (
	ProviderBaidu     = "baidu"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	ErrUnknownProvider    = errors.New("unknown content safety provider")
	ErrMissingCredentials = errors.New("content safety credentials missing")
)

type Config struct {
	Provider  string
	Baidu     BaiduConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
}

// New builds the configured backend. Failing here is fatal for a gateway
// with content safety enabled.
func New(cfg Config) (bottle.Moderator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderBaidu
	}

	switch provider {
	case ProviderBaidu:
		return NewBaidu(cfg.Baidu)
	case ProviderOpenAI:
		return NewOpenAI(cfg.OpenAI)
	case ProviderAnthropic:
		return NewAnthropic(cfg.Anthropic)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
