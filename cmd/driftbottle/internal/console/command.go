package console

import (
	"github.com/spf13/cobra"
)

func NewConsoleCommand() *cobra.Command {
	var (
		user  string
		name  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"c"},
		Short:   "Throw and pick bottles interactively from the terminal",
		Args:    cobra.NoArgs,
		Example: `  driftbottle console
  driftbottle console --user alice --name Alice`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return consoleCmd(user, name, debug)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id to act as (default: channels.console.user_id)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (default: channels.console.user_name)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
