package bottle

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/commands"
)

type options struct {
	user   string
	name   string
	cloud  bool
	images []string
}

func NewBottleCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "bottle",
		Aliases: []string{"b"},
		Short:   "Run one bottle command and exit",
		Example: `  driftbottle bottle throw "hello sea" --image ./shell.png
  driftbottle bottle pick --cloud
  driftbottle bottle view l3
  driftbottle bottle count
  driftbottle bottle list`,
	}
	cmd.PersistentFlags().StringVarP(&opts.user, "user", "u", "", "User id to act as (default: channels.console.user_id)")
	cmd.PersistentFlags().StringVarP(&opts.name, "name", "n", "", "Display name (default: channels.console.user_name)")

	throwCmd := &cobra.Command{
		Use:   "throw <text>",
		Short: "Throw a bottle into the sea",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := commands.ThrowLocal
			if opts.cloud {
				name = commands.ThrowCloud
			}
			return run(cmd, opts, name, args, opts.images)
		},
	}
	throwCmd.Flags().BoolVar(&opts.cloud, "cloud", false, "Throw into the shared cloud sea")
	throwCmd.Flags().StringArrayVar(&opts.images, "image", nil, "Attach an image file or URL (repeatable)")

	pickCmd := &cobra.Command{
		Use:   "pick",
		Short: "Pick a random bottle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := commands.PickLocal
			if opts.cloud {
				name = commands.PickCloud
			}
			return run(cmd, opts, name, nil, nil)
		},
	}
	pickCmd.Flags().BoolVar(&opts.cloud, "cloud", false, "Pick from the shared cloud sea")

	viewCmd := &cobra.Command{
		Use:   "view [id]",
		Short: "Show a bottle you picked, random when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, commands.ViewPicked, args, nil)
		},
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count floating and picked bottles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, commands.Count, nil, nil)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the bottles you picked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, commands.ListPicked, nil, nil)
		},
	}

	cmd.AddCommand(throwCmd, pickCmd, viewCmd, countCmd, listCmd)
	return cmd
}

func run(cmd *cobra.Command, opts *options, name string, args, media []string) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	user, display := opts.user, opts.name
	if user == "" {
		user = cfg.Channels.Console.UserID
	}
	if display == "" {
		display = cfg.Channels.Console.UserName
	}

	store, err := internal.OpenStore(cfg)
	if err != nil {
		return err
	}
	h := internal.NewHandler(cfg, store)

	content := h.Router().Prefix() + name
	if len(args) > 0 {
		content += " " + strings.Join(args, " ")
	}
	out, _ := h.Handle(cmd.Context(), bus.InboundMessage{
		Channel:  "console",
		SenderID: user,
		ChatID:   user,
		Content:  content,
		Media:    media,
		Metadata: map[string]string{bus.MetaSenderName: display},
	})
	printReply(cmd.OutOrStdout(), out)
	return nil
}

func printReply(w io.Writer, out *bus.OutboundMessage) {
	if out == nil {
		return
	}
	fmt.Fprintln(w, out.Content)
	for _, m := range out.Media {
		if strings.HasPrefix(m, "data:") {
			fmt.Fprintf(w, "[image] inline, %d bytes encoded\n", len(m))
			continue
		}
		fmt.Fprintf(w, "[image] %s\n", m)
	}
}
