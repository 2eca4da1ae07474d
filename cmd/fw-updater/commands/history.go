package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fwci/fw-updater/internal/config"
	"github.com/fwci/fw-updater/pkg/db"
	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded update runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	runs, err := repo.List(historyLimit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-26s %-14s %-8s %-14s %-14s %-16s %-18s\n", "RUN", "SERIAL", "PRODUCT", "BEFORE", "AFTER", "OUTCOME", "STARTED")
	fmt.Println("--------------------------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		started := run.CreatedAt
		if t, ok := run.Created(); ok {
			started = humanize.Time(t)
		}
		outcome := run.Outcome
		if outcome == "" {
			outcome = run.State
		}

		fmt.Printf("%-26s %-14s %-8s %-14s %-14s %-16s %-18s\n",
			run.ID, dash(run.Serial), dash(run.ProductLine), dash(run.CurrentVersion),
			dash(run.PostVersion), outcome, started)
		if run.ErrorMessage != "" {
			fmt.Printf("  %s: %s\n", run.ErrorKind, run.ErrorMessage)
		}
	}

	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
