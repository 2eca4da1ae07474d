package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fwci/fw-updater/pkg/db"
	"github.com/fwci/fw-updater/pkg/errors"
	appfsm "github.com/fwci/fw-updater/pkg/fsm"
	"github.com/fwci/fw-updater/pkg/report"
	"github.com/fwci/fw-updater/pkg/update"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the connected device to the bundled firmware and verify it",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath); err != nil {
		return err
	}

	sink := report.New(os.Stdout, nil)
	orch, err := newOrchestrator(cfg, sink)
	if err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		repo.Close()
		return errors.Wrap(err, "FSM manager failed")
	}

	machine := appfsm.NewMachine(orch, repo)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		manager.Shutdown(10 * time.Second)
		repo.Close()
		return errors.Wrap(err, "FSM register failed")
	}

	run, err := machine.Execute(ctx, manager, start, ulid.Make().String())

	// ReportAndExit does not return, so release resources first.
	manager.Shutdown(10 * time.Second)
	repo.Close()

	if err != nil {
		return err
	}

	printRun(run)
	slog.Info("update_finished", "run_id", run.ID, "outcome", run.Outcome, "exit_code", run.Outcome.ExitCode())
	sink.ReportAndExit()
	return nil
}

func printRun(run *update.Run) {
	fmt.Printf("Run:      %s\n", run.ID)
	if run.Pre != nil {
		fmt.Printf("Device:   %s\n", run.Pre)
	}
	if run.Current != "" {
		fmt.Printf("Firmware: %s (bundled %s)\n", run.Current, run.Bundled)
	}
	if run.Image != nil {
		fmt.Printf("Image:    %s\n", run.Image.Path)
	}
	fmt.Printf("Outcome:  %s\n", run.Outcome)
	if run.Err != nil && run.Outcome != update.OutcomeSkipped {
		fmt.Printf("Reason:   %v\n", run.Err)
	}
}
