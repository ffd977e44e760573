// Package auth collects platform and provider tokens interactively.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/tinyland-inc/driftbottle/pkg/config"
)

// Targets lists what LoginPasteToken can store a token for.
var Targets = []string{
	"telegram",
	"discord",
	"slack-bot",
	"slack-app",
	"onebot",
	"openai",
	"anthropic",
}

// LoginPasteToken prompts on w and reads one token line from r.
func LoginPasteToken(target string, r io.Reader, w io.Writer) (string, error) {
	if !slices.Contains(Targets, target) {
		return "", fmt.Errorf("unknown target %q (want one of %s)", target, strings.Join(Targets, ", "))
	}

	fmt.Fprintf(w, "Paste your token from %s:\n", targetDisplayName(target))
	fmt.Fprint(w, "> ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return "", errors.New("no input received")
	}

	token := strings.TrimSpace(scanner.Text())
	if token == "" {
		return "", errors.New("token cannot be empty")
	}
	return token, nil
}

// Apply stores token in cfg and enables the matching channel.
func Apply(cfg *config.Config, target, token string) error {
	ch := &cfg.Channels
	switch target {
	case "telegram":
		ch.Telegram.Token, ch.Telegram.Enabled = token, true
	case "discord":
		ch.Discord.Token, ch.Discord.Enabled = token, true
	case "slack-bot":
		ch.Slack.BotToken = token
	case "slack-app":
		if !strings.HasPrefix(token, "xapp-") {
			return errors.New("slack app tokens start with xapp-")
		}
		ch.Slack.AppToken = token
	case "onebot":
		ch.OneBot.AccessToken, ch.OneBot.Enabled = token, true
	case "openai":
		cfg.ContentSafety.OpenAI.APIKey = token
	case "anthropic":
		cfg.ContentSafety.Anthropic.APIKey = token
	default:
		return fmt.Errorf("unknown target %q", target)
	}
	if ch.Slack.BotToken != "" && ch.Slack.AppToken != "" {
		ch.Slack.Enabled = true
	}
	return nil
}

func targetDisplayName(target string) string {
	switch target {
	case "telegram":
		return "@BotFather"
	case "discord":
		return "discord.com/developers/applications"
	case "slack-bot", "slack-app":
		return "api.slack.com/apps"
	case "onebot":
		return "your OneBot implementation's access_token setting"
	case "anthropic":
		return "console.anthropic.com"
	case "openai":
		return "platform.openai.com"
	default:
		return target
	}
}
