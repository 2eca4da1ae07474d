// Package update sequences a firmware update of a single device:
// discovery, decision, flash and re-verification.
//
// The workflow is an explicit state machine. Each state runs once through
// Step; any failed guard moves the run to StateAbort with a structured *Error.
package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fwci/fw-updater/pkg/device"
	"github.com/fwci/fw-updater/pkg/flasher"
	"github.com/fwci/fw-updater/pkg/locator"
	"github.com/fwci/fw-updater/pkg/registry"
	"github.com/fwci/fw-updater/pkg/report"
	"github.com/fwci/fw-updater/pkg/version"
)

// DefaultUpdaterName is the basename of the updater executable.
const DefaultUpdaterName = "rs-fw-update.exe"

// TestName is the name reported to the sink for the flash and verification.
const TestName = "Update FW"

// ImageLocator resolves the firmware image and the updater executable.
type ImageLocator interface {
	LocateImage(productLine, version string) (*locator.ImageRef, error)
	LocateTool(name string) (string, error)
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Hub         device.Hub
	Devices     device.Backend
	Registry    registry.Registry
	Images      ImageLocator
	Runner      flasher.Runner
	Sink        report.Sink
	UpdaterName string
}

// Orchestrator runs the update workflow.
type Orchestrator struct {
	hub         device.Hub
	devices     device.Backend
	registry    registry.Registry
	images      ImageLocator
	runner      flasher.Runner
	sink        report.Sink
	updaterName string

	steps map[State]func(context.Context, *Run) error
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		hub:         cfg.Hub,
		devices:     cfg.Devices,
		registry:    cfg.Registry,
		images:      cfg.Images,
		runner:      cfg.Runner,
		sink:        cfg.Sink,
		updaterName: cfg.UpdaterName,
	}
	if o.updaterName == "" {
		o.updaterName = DefaultUpdaterName
	}
	o.steps = map[State]func(context.Context, *Run) error{
		StateInit:         o.init,
		StateDiscoverPre:  o.discoverPre,
		StateDecide:       o.decide,
		StateLocateImage:  o.locateImage,
		StateFlash:        o.flash,
		StateDiscoverPost: o.discoverPost,
		StateVerify:       o.verify,
	}
	return o
}

// NewRun creates a run in StateInit.
func (o *Orchestrator) NewRun(id string) *Run {
	return &Run{ID: id, State: StateInit, Trace: []State{StateInit}}
}

// Step executes the run's current state and advances it. It returns the
// abort *Error when the step failed. Cancellation is honoured only before the
// flash; once the updater was invoked the remaining steps ignore ctx.
func (o *Orchestrator) Step(ctx context.Context, r *Run) error {
	if r.Terminal() {
		return fmt.Errorf("run %s already finished in %s", r.ID, r.State)
	}
	step, ok := o.steps[r.State]
	if !ok {
		return fmt.Errorf("run %s in unknown state %q", r.ID, r.State)
	}

	if r.flashAttempts == 0 {
		if err := ctx.Err(); err != nil {
			return o.abort(r, KindCancelled, string(r.State), err)
		}
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	slog.Info("update_step", "run_id", r.ID, "state", r.State)
	return step(ctx, r)
}

// Execute runs a new workflow to a terminal state.
func (o *Orchestrator) Execute(ctx context.Context, id string) *Run {
	r := o.NewRun(id)
	for !r.Terminal() {
		if err := o.Step(ctx, r); err != nil && !r.Terminal() {
			// Step only fails without finishing on programming errors.
			o.abort(r, KindExecution, string(r.State), err)
		}
	}
	return r
}

// Check runs discovery and the decision only. The returned run is either
// terminal or parked in StateLocateImage when the bundled firmware is newer.
func (o *Orchestrator) Check(ctx context.Context, id string) *Run {
	r := o.NewRun(id)
	for !r.Terminal() && r.State != StateLocateImage {
		if err := o.Step(ctx, r); err != nil && !r.Terminal() {
			o.abort(r, KindExecution, string(r.State), err)
		}
	}
	o.finish(r)
	return r
}

func (o *Orchestrator) advance(r *Run, next State) {
	slog.Info("update_transition", "run_id", r.ID, "from", r.State, "to", next)
	r.State = next
	r.Trace = append(r.Trace, next)
	if next.Terminal() {
		o.finish(r)
	}
}

// abort moves the run to StateAbort and records the failure with the sink.
func (o *Orchestrator) abort(r *Run, kind Kind, key string, cause error) error {
	e := &Error{Kind: kind, State: r.State, Key: key, Err: cause}
	r.Err = e
	r.Outcome = OutcomeAborted

	slog.Error("update_aborted", "run_id", r.ID, "state", r.State, "kind", kind, "key", key, "error", cause)

	o.sink.UnexpectedException(e)
	if r.testOpen {
		o.sink.Finish()
		r.testOpen = false
	}

	o.advance(r, StateAbort)
	return e
}

func (o *Orchestrator) finish(r *Run) {
	if r.session == nil {
		return
	}
	if err := r.session.Close(); err != nil {
		slog.Warn("discovery_session_close_failed", "run_id", r.ID, "error", err)
	}
	r.session = nil
}

func (o *Orchestrator) init(ctx context.Context, r *Run) error {
	available, err := o.hub.Available(ctx)
	if err != nil {
		return o.abort(r, KindTopology, "hub", err)
	}
	if !available {
		r.Err = &Error{Kind: KindEnvironmentUnsupported, State: r.State, Key: "hub"}
		r.Outcome = OutcomeSkipped
		slog.Info("update_skipped", "run_id", r.ID, "reason", "no device hub available; update checking not supported here")
		o.advance(r, StateSkipped)
		return nil
	}

	session, err := o.devices.Open(ctx)
	if err != nil {
		return o.abort(r, KindTopology, "discovery", err)
	}
	r.session = session
	o.advance(r, StateDiscoverPre)
	return nil
}

// discoverOne requires exactly one connected device.
func (o *Orchestrator) discoverOne(ctx context.Context, r *Run) (*device.Snapshot, error) {
	handles, err := r.session.Discover(ctx, false)
	if err != nil {
		return nil, o.abort(r, KindTopology, "discovery", err)
	}
	if len(handles) != 1 {
		slog.Error("device_count_mismatch", "run_id", r.ID, "expected", 1, "got", len(handles))
		return nil, o.abort(r, KindTopology, strconv.Itoa(len(handles)),
			fmt.Errorf("expected 1 device, got %d", len(handles)))
	}

	snap, err := device.Capture(handles[0])
	if err != nil {
		return nil, o.abort(r, KindLookup, "device attributes", err)
	}
	slog.Info("device_found", "run_id", r.ID, "serial", snap.Serial, "product_line", snap.ProductLine, "firmware", snap.FirmwareVersion)
	return &snap, nil
}

func (o *Orchestrator) discoverPre(ctx context.Context, r *Run) error {
	snap, err := o.discoverOne(ctx, r)
	if err != nil {
		return err
	}
	r.Pre = snap
	o.advance(r, StateDecide)
	return nil
}

func (o *Orchestrator) decide(ctx context.Context, r *Run) error {
	r.Current = version.Pretty(r.Pre.FirmwareVersion)

	bundled, ok := o.registry.BundledVersion(r.Pre.ProductLine)
	if !ok {
		return o.abort(r, KindLookup, r.Pre.ProductLine,
			fmt.Errorf("no bundled firmware version for product line %s", r.Pre.ProductLine))
	}
	r.Bundled = bundled
	slog.Info("bundled_version", "run_id", r.ID, "product_line", r.Pre.ProductLine, "bundled", bundled, "current", r.Current)

	newer, err := version.IsNewer(r.Current, bundled)
	if err != nil {
		return o.abort(r, KindFormat, r.Current+" vs "+bundled, err)
	}
	if !newer {
		r.Outcome = OutcomeNotNeeded
		slog.Info("update_not_needed", "run_id", r.ID, "firmware", r.Current)
		o.advance(r, StateNotNeeded)
		return nil
	}

	o.advance(r, StateLocateImage)
	return nil
}

func (o *Orchestrator) locateImage(ctx context.Context, r *Run) error {
	name := locator.ImageName(r.Pre.ProductLine, r.Bundled)
	img, err := o.images.LocateImage(r.Pre.ProductLine, r.Bundled)
	if err != nil {
		return o.abort(r, KindLookup, name, err)
	}
	r.Image = img

	updater, err := o.images.LocateTool(o.updaterName)
	if err != nil {
		return o.abort(r, KindLookup, o.updaterName, err)
	}
	r.Updater = updater

	o.advance(r, StateFlash)
	return nil
}

func (o *Orchestrator) flash(ctx context.Context, r *Run) error {
	if r.flashAttempts > 0 {
		return o.abort(r, KindExecution, r.Updater, errors.New("flash already attempted in this run"))
	}

	o.sink.Begin(TestName)
	r.testOpen = true
	r.flashAttempts++

	slog.Info("flash_start", "run_id", r.ID, "updater", r.Updater, "image", r.Image.Path)
	if err := o.runner.Run(context.WithoutCancel(ctx), r.Updater, "-f", r.Image.Path); err != nil {
		return o.abort(r, KindExecution, r.Updater, err)
	}
	slog.Info("flash_complete", "run_id", r.ID)

	o.advance(r, StateDiscoverPost)
	return nil
}

func (o *Orchestrator) discoverPost(ctx context.Context, r *Run) error {
	snap, err := o.discoverOne(ctx, r)
	if err != nil {
		return err
	}
	if snap.Serial != r.Pre.Serial {
		slog.Warn("device_serial_changed", "run_id", r.ID, "before", r.Pre.Serial, "after", snap.Serial)
	}
	r.Post = snap
	o.advance(r, StateVerify)
	return nil
}

func (o *Orchestrator) verify(ctx context.Context, r *Run) error {
	got := version.Pretty(r.Post.FirmwareVersion)

	if o.sink.CheckEqual(got, r.Bundled) {
		r.Outcome = OutcomeUpdatedOK
		slog.Info("update_verified", "run_id", r.ID, "firmware", got)
	} else {
		r.Outcome = OutcomeMismatch
		slog.Error("update_mismatch", "run_id", r.ID, "firmware", got, "expected", r.Bundled)
	}
	o.sink.Finish()
	r.testOpen = false

	o.advance(r, StateDone)
	return nil
}
