// Package fsm drives the firmware update workflow through the superfly/fsm
// library. Each orchestrator state is one FSM transition, so every step is
// logged and persisted by the FSM manager as well as in the run history.
package fsm

import (
	"context"
	"log/slog"

	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/fwci/fw-updater/pkg/update"
	"github.com/superfly/fsm"
)

// Register registers the firmware update FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[RunRequest, RunResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[RunRequest, RunResponse](manager, "fw-update").
		Start(StateInit, m.handler(update.StateInit)).
		To(StateDiscoverPre, m.handler(update.StateDiscoverPre)).
		To(StateDecide, m.handler(update.StateDecide)).
		To(StateLocateImage, m.handler(update.StateLocateImage)).
		To(StateFlash, m.handler(update.StateFlash)).
		To(StateDiscoverPost, m.handler(update.StateDiscoverPost)).
		To(StateVerify, m.handler(update.StateVerify)).
		End(StateFinished).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Execute starts a run and waits for the FSM to finish it. An aborted run is
// not an error here; its reason is on the returned run.
func (m *Machine) Execute(ctx context.Context, manager *fsm.Manager, start fsm.Start[RunRequest, RunResponse], id string) (*update.Run, error) {
	run, err := m.Begin(id)
	if err != nil {
		return nil, err
	}

	req := &RunRequest{RunID: id}
	resp := &RunResponse{}

	version, err := start(ctx, id, fsm.NewRequest(req, resp))
	if err != nil {
		return nil, errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "run_id", id, "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		if !run.Terminal() {
			return nil, errors.Wrap(err, "FSM execution failed")
		}
		slog.Info("fsm_stopped", "run_id", id, "state", run.State, "reason", err)
	}

	return run, nil
}
