package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/commands"
	"github.com/tinyland-inc/driftbottle/pkg/config"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
	"github.com/tinyland-inc/driftbottle/pkg/moderation"
	"github.com/tinyland-inc/driftbottle/pkg/remote"
)

const Logo = "🍾"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// GetHome returns the driftbottle home, DRIFTBOTTLE_HOME or ~/.driftbottle.
func GetHome() string {
	if home := os.Getenv("DRIFTBOTTLE_HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".driftbottle")
}

func GetConfigPath() string {
	return filepath.Join(GetHome(), "config.json")
}

func GetDhallConfigPath() string {
	return filepath.Join(GetHome(), "config.dhall")
}

func LoadConfig() (*config.Config, error) {
	// Try Dhall config first (opt-in: only if .dhall file exists)
	dhallPath := GetDhallConfigPath()
	if _, err := os.Stat(dhallPath); err == nil {
		cfg, err := config.LoadDhallConfig(dhallPath)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, config.ErrDhallNotAvailable) {
			return nil, fmt.Errorf("error loading dhall config: %w", err)
		}
		logger.WarnCF("config", "dhall-to-json not installed, falling back to JSON", map[string]any{"path": dhallPath})
	}

	return config.LoadConfig(GetConfigPath())
}

// OpenStore opens the bottle store with the remote service and content
// safety wired in as cfg asks.
func OpenStore(cfg *config.Config) (*bottle.Store, error) {
	opts := []bottle.Option{
		bottle.WithLimits(cfg.Limits()),
		bottle.WithModerateLocal(cfg.ContentSafety.ModerateLocal),
	}

	if cfg.Bottle.APIBaseURL != "" {
		rc, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Bottle.APIBaseURL,
			Timeout: cfg.RequestTimeout(),
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, bottle.WithRemote(rc))
	}

	if cfg.ContentSafety.Enabled {
		m, err := moderation.New(cfg.Moderation())
		if err != nil {
			return nil, fmt.Errorf("content safety: %w", err)
		}
		opts = append(opts, bottle.WithModerator(m))
	}

	store, err := bottle.Open(cfg.DataFile(), opts...)
	if err != nil {
		return nil, fmt.Errorf("opening bottle store: %w", err)
	}
	return store, nil
}

func NewHandler(cfg *config.Config, store *bottle.Store) *commands.Handler {
	return commands.NewHandler(store,
		commands.WithPrefix(cfg.Commands.Prefix),
		commands.WithBase64(cfg.Bottle.UseBase64),
	)
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
