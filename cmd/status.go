package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/dockswap/internal/app"
	"github.com/zjrosen/dockswap/internal/daemon"
	"github.com/zjrosen/dockswap/internal/titles/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state and every title's last synced state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(func(svc *app.Services) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			state, err := daemon.Probe(ctx, svc, daemon.Options{})
			switch {
			case err != nil:
				fmt.Fprintf(out, "State:    %s\n", errorCell.Render("unreadable: "+err.Error()))
			case state.IsZero():
				fmt.Fprintln(out, "State:    unknown")
			default:
				fmt.Fprintf(out, "State:    %s\n", state)
			}
			fmt.Fprintf(out, "Signal:   %s\n", svc.Config.Signal.Source)
			fmt.Fprintf(out, "Flags:    %s\n", strings.Join(svc.Flags.EnabledNames(), ", "))
			fmt.Fprintf(out, "Database: %s\n", svc.DB.Path())

			titles := svc.Titles.List(registry.ListQuery{})
			stale := 0
			for _, t := range titles {
				if t.Syncable() && !state.IsZero() && t.Fingerprint != state {
					stale++
				}
			}
			fmt.Fprintf(out, "Titles:   %d (%d not synced to the current state)\n\n", len(titles), stale)
			if len(titles) > 0 {
				renderTitles(out, titles)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
