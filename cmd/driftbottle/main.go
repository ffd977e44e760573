// driftbottle - message in a bottle for chat platforms

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal"
	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal/auth"
	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal/backup"
	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal/bottle"
	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal/console"
	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal/gateway"
	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal/migrate"
	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal/version"
)

func NewDriftbottleCommand() *cobra.Command {
	short := fmt.Sprintf("%s driftbottle - message in a bottle v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "driftbottle",
		Short:   short,
		Example: "driftbottle bottle pick",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		console.NewConsoleCommand(),
		bottle.NewBottleCommand(),
		auth.NewAuthCommand(),
		backup.NewBackupCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewDriftbottleCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
