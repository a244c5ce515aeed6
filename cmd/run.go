package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/dockswap/internal/daemon"
	"github.com/zjrosen/dockswap/internal/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the state monitor in the foreground",
	Long: `Run the background loops until interrupted:

  - the state monitor, which swaps every title's settings when the
    environment state changes
  - the device monitor, when the signal comes from the display adapter count
  - the process watcher, which captures a title's settings when it exits
    (process-watcher flag)
  - the drift watcher, which reports settings edited outside of a sync
    (drift-watch flag)

Stops on Ctrl+C or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.ErrorErr(log.CatConfig, "Closing services failed", err)
		}
	}()

	d, err := daemon.New(svc, daemon.Options{Out: cmd.OutOrStdout()})
	if err != nil {
		return fmt.Errorf("creating daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "dockswap watching %d titles (%s/%s)\n", svc.Titles.Len(), svc.States.A, svc.States.B)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	if err := d.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
	return nil
}
