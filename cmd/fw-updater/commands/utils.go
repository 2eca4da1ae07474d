package commands

import (
	"os"
	"path/filepath"

	"github.com/fwci/fw-updater/internal/config"
	"github.com/fwci/fw-updater/pkg/device"
	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/fwci/fw-updater/pkg/flasher"
	"github.com/fwci/fw-updater/pkg/locator"
	"github.com/fwci/fw-updater/pkg/registry"
	"github.com/fwci/fw-updater/pkg/report"
	"github.com/fwci/fw-updater/pkg/security"
	"github.com/fwci/fw-updater/pkg/update"
	"github.com/spf13/afero"
)

// ensureDirectories creates the database directories. fsmDBPath may be empty
// for commands that do not run the FSM.
func ensureDirectories(sqlitePath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}

// loadConfig loads and validates the configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// newOrchestrator wires the real collaborators of the update workflow
func newOrchestrator(cfg *config.Config, sink report.Sink) (*update.Orchestrator, error) {
	versionsFile := cfg.VersionsFile
	if !filepath.IsAbs(versionsFile) {
		versionsFile = filepath.Join(cfg.SourceRoot, versionsFile)
	}
	table, err := registry.LoadFile(versionsFile)
	if err != nil {
		return nil, errors.Wrap(err, "registry load failed")
	}

	var hub device.Hub = device.StaticHub(true)
	if cfg.RequireHub {
		hub = device.NewUSBHub(cfg.HubVendorIDs)
	}

	validator := security.NewValidator(cfg.MaxImageSize, cfg.MaxSyncSize)

	return update.New(update.Config{
		Hub:         hub,
		Devices:     device.NewToolBackend(device.CommandQuery(cfg.EnumerateCommand)),
		Registry:    table,
		Images:      locator.New(afero.NewOsFs(), cfg.SourceRoot, validator).WithMirror(cfg.ImageDir),
		Runner:      flasher.ExecRunner{},
		Sink:        sink,
		UpdaterName: cfg.UpdaterName,
	}), nil
}
