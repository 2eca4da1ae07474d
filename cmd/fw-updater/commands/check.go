package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fwci/fw-updater/pkg/report"
	"github.com/fwci/fw-updater/pkg/update"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the connected device needs a firmware update",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Nothing is flashed, so there is no test to report.
	orch, err := newOrchestrator(cfg, report.New(io.Discard, func(int) {}))
	if err != nil {
		return err
	}

	run := orch.Check(ctx, ulid.Make().String())

	switch {
	case run.State == update.StateLocateImage:
		fmt.Printf("Update available: %s -> %s (%s)\n", run.Current, run.Bundled, run.Pre)
	case run.Outcome == update.OutcomeNotNeeded:
		fmt.Printf("Up to date: %s (%s)\n", run.Current, run.Pre)
	case run.Outcome == update.OutcomeSkipped:
		fmt.Println("Skipped: no device hub available")
	default:
		return fmt.Errorf("check aborted: %w", run.Err)
	}
	return nil
}
