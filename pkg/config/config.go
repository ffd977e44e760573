package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/moderation"
)

// ErrDhallNotAvailable is returned when dhall-to-json is not installed.
var ErrDhallNotAvailable = errors.New("dhall-to-json not available")

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Bottle        BottleConfig        `json:"bottle"`
	ContentSafety ContentSafetyConfig `json:"content_safety"`
	Commands      CommandsConfig      `json:"commands"`
	Channels      ChannelsConfig      `json:"channels"`
	Backup        BackupConfig        `json:"backup"`
	Gateway       GatewayConfig       `json:"gateway"`
}

type BottleConfig struct {
	DataDir               string `env:"DRIFTBOTTLE_BOTTLE_DATA_DIR"                json:"data_dir"`
	MaxTextLength         int    `env:"DRIFTBOTTLE_BOTTLE_MAX_TEXT_LENGTH"         json:"max_text_length"`
	MaxImages             int    `env:"DRIFTBOTTLE_BOTTLE_MAX_IMAGES"              json:"max_images"`
	UseBase64             bool   `env:"DRIFTBOTTLE_BOTTLE_USE_BASE64"              json:"use_base64"`
	APIBaseURL            string `env:"DRIFTBOTTLE_BOTTLE_API_BASE_URL"            json:"api_base_url"`
	RequestTimeoutSeconds int    `env:"DRIFTBOTTLE_BOTTLE_REQUEST_TIMEOUT_SECONDS" json:"request_timeout_seconds"`
}

type ContentSafetyConfig struct {
	Enabled       bool           `env:"DRIFTBOTTLE_CONTENT_SAFETY_ENABLED"        json:"enabled"`
	Provider      string         `env:"DRIFTBOTTLE_CONTENT_SAFETY_PROVIDER"       json:"provider"`
	ModerateLocal bool           `env:"DRIFTBOTTLE_CONTENT_SAFETY_MODERATE_LOCAL" json:"moderate_local"`
	Baidu         BaiduConfig    `json:"baidu"`
	OpenAI        ProviderConfig `envPrefix:"DRIFTBOTTLE_CONTENT_SAFETY_OPENAI_"    json:"openai"`
	Anthropic     ProviderConfig `envPrefix:"DRIFTBOTTLE_CONTENT_SAFETY_ANTHROPIC_" json:"anthropic"`
}

type BaiduConfig struct {
	AppID     string `env:"DRIFTBOTTLE_CONTENT_SAFETY_BAIDU_APP_ID"     json:"app_id"`
	APIKey    string `env:"DRIFTBOTTLE_CONTENT_SAFETY_BAIDU_API_KEY"    json:"api_key"`
	SecretKey string `env:"DRIFTBOTTLE_CONTENT_SAFETY_BAIDU_SECRET_KEY" json:"secret_key"`
}

type ProviderConfig struct {
	APIKey  string `env:"API_KEY"  json:"api_key"`
	APIBase string `env:"API_BASE" json:"api_base"`
	Model   string `env:"MODEL"    json:"model,omitempty"`
}

type CommandsConfig struct {
	Prefix string `env:"DRIFTBOTTLE_COMMANDS_PREFIX" json:"prefix"`
}

type ChannelsConfig struct {
	Console  ConsoleConfig  `json:"console"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Slack    SlackConfig    `json:"slack"`
	OneBot   OneBotConfig   `json:"onebot"`
}

type ConsoleConfig struct {
	UserID   string `env:"DRIFTBOTTLE_CHANNELS_CONSOLE_USER_ID"   json:"user_id"`
	UserName string `env:"DRIFTBOTTLE_CHANNELS_CONSOLE_USER_NAME" json:"user_name"`
}

type TelegramConfig struct {
	Enabled   bool                `env:"DRIFTBOTTLE_CHANNELS_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"DRIFTBOTTLE_CHANNELS_TELEGRAM_TOKEN"      json:"token"`
	Proxy     string              `env:"DRIFTBOTTLE_CHANNELS_TELEGRAM_PROXY"      json:"proxy"`
	AllowFrom FlexibleStringSlice `env:"DRIFTBOTTLE_CHANNELS_TELEGRAM_ALLOW_FROM" json:"allow_from"`
}

type DiscordConfig struct {
	Enabled     bool                `env:"DRIFTBOTTLE_CHANNELS_DISCORD_ENABLED"      json:"enabled"`
	Token       string              `env:"DRIFTBOTTLE_CHANNELS_DISCORD_TOKEN"        json:"token"`
	AllowFrom   FlexibleStringSlice `env:"DRIFTBOTTLE_CHANNELS_DISCORD_ALLOW_FROM"   json:"allow_from"`
	MentionOnly bool                `env:"DRIFTBOTTLE_CHANNELS_DISCORD_MENTION_ONLY" json:"mention_only"`
}

type SlackConfig struct {
	Enabled   bool                `env:"DRIFTBOTTLE_CHANNELS_SLACK_ENABLED"    json:"enabled"`
	BotToken  string              `env:"DRIFTBOTTLE_CHANNELS_SLACK_BOT_TOKEN"  json:"bot_token"`
	AppToken  string              `env:"DRIFTBOTTLE_CHANNELS_SLACK_APP_TOKEN"  json:"app_token"`
	AllowFrom FlexibleStringSlice `env:"DRIFTBOTTLE_CHANNELS_SLACK_ALLOW_FROM" json:"allow_from"`
}

type OneBotConfig struct {
	Enabled           bool                `env:"DRIFTBOTTLE_CHANNELS_ONEBOT_ENABLED"            json:"enabled"`
	WSUrl             string              `env:"DRIFTBOTTLE_CHANNELS_ONEBOT_WS_URL"             json:"ws_url"`
	AccessToken       string              `env:"DRIFTBOTTLE_CHANNELS_ONEBOT_ACCESS_TOKEN"       json:"access_token"`
	ImageToken        string              `env:"DRIFTBOTTLE_CHANNELS_ONEBOT_IMAGE_TOKEN"        json:"image_token,omitempty"`
	ReconnectInterval int                 `env:"DRIFTBOTTLE_CHANNELS_ONEBOT_RECONNECT_INTERVAL" json:"reconnect_interval"` // seconds
	AllowFrom         FlexibleStringSlice `env:"DRIFTBOTTLE_CHANNELS_ONEBOT_ALLOW_FROM"         json:"allow_from"`
}

type BackupConfig struct {
	Enabled bool   `env:"DRIFTBOTTLE_BACKUP_ENABLED" json:"enabled"`
	Cron    string `env:"DRIFTBOTTLE_BACKUP_CRON"    json:"cron"`
	Dir     string `env:"DRIFTBOTTLE_BACKUP_DIR"     json:"dir"`
	Keep    int    `env:"DRIFTBOTTLE_BACKUP_KEEP"    json:"keep"`
}

type GatewayConfig struct {
	Debug bool `env:"DRIFTBOTTLE_GATEWAY_DEBUG" json:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Bottle: BottleConfig{
			DataDir:               "~/.driftbottle/data",
			MaxTextLength:         bottle.DefaultMaxTextLength,
			MaxImages:             bottle.DefaultMaxImages,
			RequestTimeoutSeconds: 10,
		},
		ContentSafety: ContentSafetyConfig{
			Provider: moderation.ProviderBaidu,
		},
		Commands: CommandsConfig{Prefix: "/"},
		Channels: ChannelsConfig{
			Console: ConsoleConfig{UserID: "local", UserName: "console"},
			OneBot:  OneBotConfig{WSUrl: "ws://127.0.0.1:3001", ReconnectInterval: 5},
		},
		Backup: BackupConfig{
			Cron: "0 3 * * *",
			Dir:  "~/.driftbottle/backups",
			Keep: 7,
		},
	}
}

// Validate rejects settings that would make the bot misbehave rather than
// fail loudly later.
func (c *Config) Validate() error {
	var errs []error
	if c.Bottle.MaxTextLength < 0 {
		errs = append(errs, fmt.Errorf("bottle.max_text_length must be >= 0, got %d", c.Bottle.MaxTextLength))
	}
	if c.Bottle.MaxImages < 0 {
		errs = append(errs, fmt.Errorf("bottle.max_images must be >= 0, got %d", c.Bottle.MaxImages))
	}
	if u := c.Bottle.APIBaseURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		errs = append(errs, fmt.Errorf("bottle.api_base_url must be an http(s) URL, got %q", u))
	}
	if c.Backup.Enabled {
		if !gronx.New().IsValid(c.Backup.Cron) {
			errs = append(errs, fmt.Errorf("backup.cron is not a valid cron expression: %q", c.Backup.Cron))
		}
		if c.Backup.Keep < 1 {
			errs = append(errs, fmt.Errorf("backup.keep must be >= 1, got %d", c.Backup.Keep))
		}
	}
	return errors.Join(errs...)
}

// DataFile is the path of the bottle document.
func (c *Config) DataFile() string {
	return filepath.Join(expandHome(c.Bottle.DataDir), bottle.DefaultFileName)
}

func (c *Config) BackupDir() string {
	return expandHome(c.Backup.Dir)
}

func (c *Config) Limits() bottle.Limits {
	return bottle.Limits{MaxTextLength: c.Bottle.MaxTextLength, MaxImages: c.Bottle.MaxImages}
}

func (c *Config) RequestTimeout() time.Duration {
	if c.Bottle.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Bottle.RequestTimeoutSeconds) * time.Second
}

// Moderation maps the content_safety section onto the moderation backends.
func (c *Config) Moderation() moderation.Config {
	cs := c.ContentSafety
	return moderation.Config{
		Provider: cs.Provider,
		Baidu: moderation.BaiduConfig{
			AppID:     cs.Baidu.AppID,
			APIKey:    cs.Baidu.APIKey,
			SecretKey: cs.Baidu.SecretKey,
			Timeout:   c.RequestTimeout(),
		},
		OpenAI: moderation.OpenAIConfig{
			APIKey:  cs.OpenAI.APIKey,
			APIBase: cs.OpenAI.APIBase,
			Model:   cs.OpenAI.Model,
		},
		Anthropic: moderation.AnthropicConfig{
			APIKey:  cs.Anthropic.APIKey,
			APIBase: cs.Anthropic.APIBase,
			Model:   cs.Anthropic.Model,
		},
	}
}

// LoadDhallConfig loads configuration from a .dhall file by invoking
// dhall-to-json and parsing the resulting JSON.
func LoadDhallConfig(path string) (*Config, error) {
	dhallBin, err := exec.LookPath("dhall-to-json")
	if errors.Is(err, exec.ErrNotFound) {
		return nil, ErrDhallNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("dhall-to-json lookup: %w", err)
	}

	cmd := exec.Command(dhallBin, "--file", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("dhall-to-json failed for %s: %w\n%s", path, err, stderr.String())
	}

	cfg, err := parse(out)
	if err != nil {
		return nil, fmt.Errorf("error parsing dhall-to-json output: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads path on top of the defaults. A missing file yields the
// defaults; environment variables override either.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		data = nil
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
