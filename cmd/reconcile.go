package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/dockswap/internal/app"
	"github.com/zjrosen/dockswap/internal/daemon"
	"github.com/zjrosen/dockswap/internal/reconcile"
	"github.com/zjrosen/dockswap/internal/titles/domain"
)

var (
	reconcileState string
	reconcileTitle string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Bring every title in line with the current state once",
	Long: `Run one reconciliation pass. Titles last synced against another state
are swapped; settings edited since their last sync are resolved according
to conflict_policy.

Without --state the environment signal is read once. --state accepts a
state name, or a/b.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(func(svc *app.Services) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			state, err := resolveState(ctx, svc, reconcileState)
			if err != nil {
				return err
			}

			pass := svc.Reconciler()
			report := reconcile.Report{State: state}
			if reconcileTitle != "" {
				t, err := svc.Titles.Lookup(reconcileTitle)
				if err != nil {
					return err
				}
				report.Titles = append(report.Titles, pass.RunTitle(ctx, t, state))
			} else {
				report = pass.Run(ctx, state)
			}

			printReport(cmd.OutOrStdout(), report)
			if errs := report.Errs(); len(errs) > 0 {
				return fmt.Errorf("%d titles could not be reconciled", len(errs))
			}
			return nil
		})
	},
}

func init() {
	reconcileCmd.Flags().StringVarP(&reconcileState, "state", "s", "", "state to reconcile against (default: read the signal)")
	reconcileCmd.Flags().StringVarP(&reconcileTitle, "title", "t", "", "only this title (ID or name)")
	rootCmd.AddCommand(reconcileCmd)
}

// resolveState parses an explicit state or reads the signal once.
func resolveState(ctx context.Context, svc *app.Services, explicit string) (domain.StateKey, error) {
	if explicit != "" {
		on, err := svc.States.Parse(explicit)
		if err != nil {
			return "", err
		}
		return svc.States.Key(on), nil
	}
	state, err := daemon.Probe(ctx, svc, daemon.Options{})
	if err != nil {
		return "", fmt.Errorf("reading signal: %w", err)
	}
	if state.IsZero() {
		return "", errors.New("signal is unknown; pass --state")
	}
	return state, nil
}

func printReport(w io.Writer, report reconcile.Report) {
	fmt.Fprintf(w, "Reconciled against %s\n", report.State)
	for _, tr := range report.Titles {
		switch {
		case tr.Err != nil:
			fmt.Fprintf(w, "  %s: %s\n", tr.TitleName, errorCell.Render(tr.Err.Error()))
			continue
		case tr.Skipped:
			fmt.Fprintf(w, "  %s: skipped\n", tr.TitleName)
			continue
		case !tr.Stepped:
			fmt.Fprintf(w, "  %s: up to date\n", tr.TitleName)
		default:
			fmt.Fprintf(w, "  %s: updated (%d conflicts)\n", tr.TitleName, tr.Conflicts())
		}
		for _, e := range tr.Entries {
			if e.Err != nil {
				fmt.Fprintf(w, "    %s: %s\n", shortenPath(e.Path), errorCell.Render(e.Err.Error()))
				continue
			}
			if e.Resolution != nil {
				fmt.Fprintf(w, "    %s: %s\n", shortenPath(e.Path), e.Resolution)
			}
		}
	}
}
