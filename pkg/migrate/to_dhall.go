package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinyland-inc/driftbottle/pkg/config"
)

// ToDhallOptions controls JSON-to-Dhall config migration.
type ToDhallOptions struct {
	ConfigPath string // JSON config path (default: ~/.driftbottle/config.json)
	OutputPath string // Dhall output path (default: next to ConfigPath)
	DryRun     bool
	Force      bool
}

// ToDhallResult summarizes the conversion.
type ToDhallResult struct {
	OutputPath string
	Output     string
	Warnings   []string
}

// RunToDhall converts a JSON config file to Dhall format.
func RunToDhall(opts ToDhallOptions) (*ToDhallResult, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".driftbottle", "config.json")
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = strings.TrimSuffix(configPath, ".json") + ".dhall"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	result := &ToDhallResult{OutputPath: outputPath}
	result.Output = configToDhall(cfg, result)

	if opts.DryRun {
		return result, nil
	}

	if !opts.Force {
		if _, err := os.Stat(outputPath); err == nil {
			return nil, fmt.Errorf("output file already exists: %s (use --force to overwrite)", outputPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, []byte(result.Output), 0o600); err != nil {
		return nil, err
	}

	return result, nil
}

// configToDhall renders a Config as a self-contained Dhall record. Secrets
// become env imports so the file can be committed.
func configToDhall(cfg *config.Config, result *ToDhallResult) string {
	r := &renderer{result: result}

	r.line("-- driftbottle configuration (generated from JSON)")
	r.line("-- Secrets are read from the environment at load time.")
	r.line("")
	r.line("let emptyStrings = [] : List Text")
	r.line("")
	r.line("in  { bottle =")
	bt := cfg.Bottle
	r.record("      ", []field{
		{"data_dir", dhallText(bt.DataDir)},
		{"max_text_length", dhallNatural(bt.MaxTextLength)},
		{"max_images", dhallNatural(bt.MaxImages)},
		{"use_base64", dhallBool(bt.UseBase64)},
		{"api_base_url", dhallText(bt.APIBaseURL)},
		{"request_timeout_seconds", dhallNatural(bt.RequestTimeoutSeconds)},
	})

	cs := cfg.ContentSafety
	r.line("    , content_safety =")
	r.line("      { enabled = " + dhallBool(cs.Enabled))
	r.line("      , provider = " + dhallText(cs.Provider))
	r.line("      , moderate_local = " + dhallBool(cs.ModerateLocal))
	r.line("      , baidu =")
	r.record("        ", []field{
		{"app_id", dhallText(cs.Baidu.AppID)},
		{"api_key{- -}", r.secret("content_safety.baidu.api_key", cs.Baidu.APIKey, "DRIFTBOTTLE_CONTENT_SAFETY_BAIDU_API_KEY")},
		{"secret_key{- -}", r.secret("content_safety.baidu.secret_key", cs.Baidu.SecretKey, "DRIFTBOTTLE_CONTENT_SAFETY_BAIDU_SECRET_KEY")},
	})
	r.line("      , openai =")
	r.provider("openai", cs.OpenAI)
	r.line("      , anthropic =")
	r.provider("anthropic", cs.Anthropic)
	r.line("      }")

	r.line("    , commands = { prefix = " + dhallText(cfg.Commands.Prefix) + " }")

	ch := cfg.Channels
	r.line("    , channels =")
	r.line("      { console = { user_id = " + dhallText(ch.Console.UserID) +
		", user_name = " + dhallText(ch.Console.UserName) + " }")
	r.line("      , telegram =")
	r.record("        ", []field{
		{"enabled", dhallBool(ch.Telegram.Enabled)},
		{"token{- -}", r.secret("channels.telegram.token", ch.Telegram.Token, "DRIFTBOTTLE_CHANNELS_TELEGRAM_TOKEN")},
		{"proxy", dhallText(ch.Telegram.Proxy)},
		{"allow_from", dhallTextList(ch.Telegram.AllowFrom)},
	})
	r.line("      , discord =")
	r.record("        ", []field{
		{"enabled", dhallBool(ch.Discord.Enabled)},
		{"token{- -}", r.secret("channels.discord.token", ch.Discord.Token, "DRIFTBOTTLE_CHANNELS_DISCORD_TOKEN")},
		{"allow_from", dhallTextList(ch.Discord.AllowFrom)},
		{"mention_only", dhallBool(ch.Discord.MentionOnly)},
	})
	r.line("      , slack =")
	r.record("        ", []field{
		{"enabled", dhallBool(ch.Slack.Enabled)},
		{"bot_token{- -}", r.secret("channels.slack.bot_token", ch.Slack.BotToken, "DRIFTBOTTLE_CHANNELS_SLACK_BOT_TOKEN")},
		{"app_token{- -}", r.secret("channels.slack.app_token", ch.Slack.AppToken, "DRIFTBOTTLE_CHANNELS_SLACK_APP_TOKEN")},
		{"allow_from", dhallTextList(ch.Slack.AllowFrom)},
	})
	r.line("      , onebot =")
	r.record("        ", []field{
		{"enabled", dhallBool(ch.OneBot.Enabled)},
		{"ws_url", dhallText(ch.OneBot.WSUrl)},
		{"access_token{- -}", r.secret("channels.onebot.access_token", ch.OneBot.AccessToken, "DRIFTBOTTLE_CHANNELS_ONEBOT_ACCESS_TOKEN")},
		{"image_token{- -}", r.secret("channels.onebot.image_token", ch.OneBot.ImageToken, "DRIFTBOTTLE_CHANNELS_ONEBOT_IMAGE_TOKEN")},
		{"reconnect_interval", dhallNatural(ch.OneBot.ReconnectInterval)},
		{"allow_from", dhallTextList(ch.OneBot.AllowFrom)},
	})
	r.line("      }")

	bk := cfg.Backup
	r.line("    , backup =")
	r.record("      ", []field{
		{"enabled", dhallBool(bk.Enabled)},
		{"cron", dhallText(bk.Cron)},
		{"dir", dhallText(bk.Dir)},
		{"keep", dhallNatural(bk.Keep)},
	})
	r.line("    , gateway = { debug = " + dhallBool(cfg.Gateway.Debug) + " }")
	r.line("    }")

	return r.b.String()
}

type field struct {
	name  string
	value string
}

type renderer struct {
	b      strings.Builder
	result *ToDhallResult
}

func (r *renderer) line(s string) {
	r.b.WriteString(s)
	r.b.WriteString("\n")
}

// record writes fields as a multi-line Dhall record at indent.
func (r *renderer) record(indent string, fields []field) {
	for i, f := range fields {
		sep := ", "
		if i == 0 {
			sep = "{ "
		}
		r.line(indent + sep + f.name + " = " + f.value)
	}
	r.line(indent + "}")
}

func (r *renderer) provider(name string, p config.ProviderConfig) {
	envVar := "DRIFTBOTTLE_CONTENT_SAFETY_" + strings.ToUpper(name) + "_API_KEY"
	r.record("        ", []field{
		{"api_key{- -}", r.secret("content_safety."+name+".api_key", p.APIKey, envVar)},
		{"api_base", dhallText(p.APIBase)},
		{"model", dhallText(p.Model)},
	})
}

// secret replaces a credential with an env import and records a warning.
// Unset credentials stay empty.
func (r *renderer) secret(path, value, envVar string) string {
	if value == "" {
		return dhallText("")
	}
	r.result.Warnings = append(r.result.Warnings,
		fmt.Sprintf("%s: credential value redacted, set %s", path, envVar))
	return fmt.Sprintf(`(env:%s as Text ? "")`, envVar)
}

// Dhall literal helpers

func dhallText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "$", "\\u0024")
	return "\"" + s + "\""
}

func dhallBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// dhallNatural renders n as a Natural, clamping negatives to zero.
func dhallNatural(n int) string {
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("%d", n)
}

func dhallTextList(ss []string) string {
	if len(ss) == 0 {
		return "emptyStrings"
	}
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = dhallText(s)
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}
