package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fw-updater",
	Short: "Device firmware update and verification",
	Long: `Checks the firmware of the single connected device against the version
bundled with the source tree, flashes the bundled image when it is newer and
verifies the device reports the expected version afterwards.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("source-root", ".", "Source tree searched for images and the updater")
	rootCmd.PersistentFlags().String("image-dir", ".artifacts/images", "Directory of mirrored firmware images")
	rootCmd.PersistentFlags().String("updater-name", "rs-fw-update.exe", "Basename of the updater executable")
	rootCmd.PersistentFlags().String("versions-file", "common/fw/firmware-version.h", "Bundled firmware versions (.h header or YAML), relative to source-root")
	rootCmd.PersistentFlags().StringSlice("enumerate-command", []string{"rs-enumerate-devices"}, "Device enumeration command")
	rootCmd.PersistentFlags().Bool("require-hub", true, "Skip unless a programmable USB hub is attached")
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/runs.db", "SQLite run history path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM BoltDB directory")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket holding firmware images")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix of firmware images")
	rootCmd.PersistentFlags().Int64("max-image-size", 64*1024*1024, "Max firmware image size in bytes")
	rootCmd.PersistentFlags().Int64("max-sync-size", 2*1024*1024*1024, "Max total size mirrored by one sync")

	for _, name := range []string{
		"source-root", "image-dir", "updater-name", "versions-file", "enumerate-command",
		"require-hub", "sqlite-path", "fsm-db-path", "s3-bucket", "s3-region", "s3-prefix",
		"max-image-size", "max-sync-size",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}
