package auth

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal"
	"github.com/tinyland-inc/driftbottle/pkg/auth"
	"github.com/tinyland-inc/driftbottle/pkg/config"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store channel and provider tokens",
	}

	var target string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Paste a token and save it to the JSON config",
		Args:  cobra.NoArgs,
		Example: `  driftbottle auth login --channel telegram
  driftbottle auth login --channel slack-app`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.LoginPasteToken(target, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			path := internal.GetConfigPath()
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if err := auth.Apply(cfg, target, token); err != nil {
				return err
			}
			if err := config.SaveConfig(path, cfg); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Saved %s token to %s\n", target, path)
			return nil
		},
	}
	loginCmd.Flags().StringVarP(&target, "channel", "c", "",
		"What the token is for: "+strings.Join(auth.Targets, ", "))
	_ = loginCmd.MarkFlagRequired("channel")

	cmd.AddCommand(loginCmd)
	return cmd
}
