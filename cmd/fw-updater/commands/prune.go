package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fwci/fw-updater/internal/config"
	"github.com/fwci/fw-updater/pkg/db"
	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	pruneOlderThan time.Duration
	pruneAll       bool
	pruneImages    bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old run history and mirrored images",
	Long: `Delete recorded runs and cached resources:
  --older-than <d>   Delete runs older than the given duration (default 720h)
  --all              Delete all recorded runs
  --images           Also remove the mirrored image directory`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Delete runs older than this")
	pruneCmd.Flags().BoolVar(&pruneAll, "all", false, "Delete all runs")
	pruneCmd.Flags().BoolVar(&pruneImages, "images", false, "Remove mirrored images")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if pruneOlderThan <= 0 && !pruneAll {
		return fmt.Errorf("--older-than must be positive")
	}

	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	cutoff := time.Now().Add(-pruneOlderThan)
	if pruneAll {
		// created_at has second resolution
		cutoff = time.Now().Add(time.Second)
	}

	n, err := repo.DeleteBefore(cutoff)
	if err != nil {
		return errors.Wrap(err, "prune failed")
	}
	fmt.Printf("Deleted %d runs\n", n)

	if pruneImages {
		if err := pruneImageDir(cfg); err != nil {
			return err
		}
	}

	return nil
}

func pruneImageDir(cfg *config.Config) error {
	if cfg.ImageDir == "" {
		return fmt.Errorf("image-dir is not set")
	}
	if _, err := os.Stat(cfg.ImageDir); os.IsNotExist(err) {
		fmt.Println("No mirrored images")
		return nil
	}
	if err := os.RemoveAll(cfg.ImageDir); err != nil {
		return errors.Wrap(err, "failed to remove mirrored images")
	}
	fmt.Printf("Removed %s\n", cfg.ImageDir)
	return nil
}
