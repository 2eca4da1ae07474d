package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/fwci/fw-updater/pkg/security"
	"github.com/fwci/fw-updater/pkg/storage"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync-images",
	Short: "Mirror firmware images from S3 into the image directory",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMirror(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	s3Client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	validator := security.NewValidator(cfg.MaxImageSize, cfg.MaxSyncSize)

	result, err := storage.SyncImages(ctx, s3Client, cfg.S3Prefix, cfg.ImageDir, validator)
	if err != nil {
		return errors.Wrap(err, "sync failed")
	}

	fmt.Printf("Mirrored %d images (%s), %d already present\n",
		len(result.Downloaded), humanize.IBytes(uint64(result.Bytes)), len(result.Skipped))
	return nil
}
