package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Source tree searched for images and the updater
	SourceRoot   string `mapstructure:"source-root"`
	ImageDir     string `mapstructure:"image-dir"`
	UpdaterName  string `mapstructure:"updater-name"`
	VersionsFile string `mapstructure:"versions-file"`

	// Device discovery
	EnumerateCommand []string `mapstructure:"enumerate-command"`
	RequireHub       bool     `mapstructure:"require-hub"`
	HubVendorIDs     []uint16 `mapstructure:"hub-vendor-ids"`

	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// S3 image mirror
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`
	S3Prefix string `mapstructure:"s3-prefix"`

	// Security limits
	MaxImageSize int64 `mapstructure:"max-image-size"`
	MaxSyncSize  int64 `mapstructure:"max-sync-size"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("source-root", ".")
	viper.SetDefault("image-dir", ".artifacts/images")
	viper.SetDefault("updater-name", "rs-fw-update.exe")
	viper.SetDefault("versions-file", "common/fw/firmware-version.h")
	viper.SetDefault("enumerate-command", []string{"rs-enumerate-devices"})
	viper.SetDefault("require-hub", true)
	viper.SetDefault("hub-vendor-ids", []uint16{0x24ff})
	viper.SetDefault("sqlite-path", ".artifacts/runs.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-prefix", "")
	viper.SetDefault("max-image-size", 64*1024*1024)
	viper.SetDefault("max-sync-size", 2*1024*1024*1024)

	// Environment variables (FWU_SOURCE_ROOT, FWU_REQUIRE_HUB, etc.)
	viper.SetEnvPrefix("FWU")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.fw-updater")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SourceRoot == "" {
		return fmt.Errorf("source-root cannot be empty")
	}
	if c.UpdaterName == "" {
		return fmt.Errorf("updater-name cannot be empty")
	}
	if strings.Contains(c.UpdaterName, "/") {
		return fmt.Errorf("updater-name must be a basename, got %q", c.UpdaterName)
	}
	if c.VersionsFile == "" {
		return fmt.Errorf("versions-file cannot be empty")
	}
	if len(c.EnumerateCommand) == 0 {
		return fmt.Errorf("enumerate-command cannot be empty")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max-image-size must be positive")
	}
	if c.MaxSyncSize <= 0 {
		return fmt.Errorf("max-sync-size must be positive")
	}
	return nil
}

// ValidateMirror checks the settings needed by sync-images
func (c *Config) ValidateMirror() error {
	if c.S3Bucket == "" {
		return fmt.Errorf("s3-bucket cannot be empty")
	}
	if c.S3Region == "" {
		return fmt.Errorf("s3-region cannot be empty")
	}
	if c.ImageDir == "" {
		return fmt.Errorf("image-dir cannot be empty")
	}
	return nil
}
