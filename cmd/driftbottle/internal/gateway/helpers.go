package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal"
	"github.com/tinyland-inc/driftbottle/pkg/backup"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/channels"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

func gatewayCmd(debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if debug || cfg.Gateway.Debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}
	defer logger.Sync()

	store, err := internal.OpenStore(cfg)
	if err != nil {
		return err
	}
	handler := internal.NewHandler(cfg, store)

	msgBus := bus.NewMessageBus()
	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("error creating channel manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backups *backup.Manager
	if cfg.Backup.Enabled {
		backups, err = backup.New(store, backup.Config{
			Cron: cfg.Backup.Cron,
			Dir:  cfg.BackupDir(),
			Keep: cfg.Backup.Keep,
		})
		if err != nil {
			return fmt.Errorf("error creating backup schedule: %w", err)
		}
		backups.Start(ctx)
		fmt.Printf("✓ Backups scheduled (%s) in %s\n", cfg.Backup.Cron, cfg.BackupDir())
	}

	active, _ := store.Counts("")
	logger.InfoCF("gateway", "Bottle store opened", map[string]any{
		"path":   store.Path(),
		"active": active,
		"cloud":  cfg.Bottle.APIBaseURL != "",
		"safety": cfg.ContentSafety.Enabled,
	})

	enabledChannels := channelManager.GetEnabledChannels()
	if len(enabledChannels) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabledChannels, ", "))
	} else {
		fmt.Println("⚠ Warning: No channels enabled")
	}

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
	}

	done := make(chan error, 1)
	go func() { done <- handler.Run(ctx, msgBus) }()

	fmt.Printf("%s Gateway started, prefix %q\n", internal.Logo, handler.Router().Prefix())
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-done:
		if err != nil {
			logger.ErrorCF("gateway", "Command loop stopped", map[string]any{"error": err.Error()})
		}
	}

	fmt.Println("\nShutting down...")
	cancel()
	if backups != nil {
		backups.Stop()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := channelManager.StopAll(stopCtx); err != nil {
		fmt.Printf("Error stopping channels: %v\n", err)
	}
	msgBus.Close()
	fmt.Println("✓ Gateway stopped")
	return nil
}
