package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fwci/fw-updater/pkg/db"
	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/fwci/fw-updater/pkg/update"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	orch *update.Orchestrator
	repo *db.Repository

	mu   sync.Mutex
	runs map[string]*update.Run
}

// NewMachine creates a new FSM machine with dependencies.
// repo may be nil to skip run history.
func NewMachine(orch *update.Orchestrator, repo *db.Repository) *Machine {
	return &Machine{
		orch: orch,
		repo: repo,
		runs: make(map[string]*update.Run),
	}
}

// Begin creates the workflow run the FSM transitions operate on
func (m *Machine) Begin(id string) (*update.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; ok {
		return nil, fmt.Errorf("run %s already exists", id)
	}
	run := m.orch.NewRun(id)
	m.runs[id] = run

	if m.repo != nil {
		if err := m.repo.Create(toRecord(run)); err != nil {
			delete(m.runs, id)
			return nil, errors.Wrap(err, "failed to record run")
		}
	}
	slog.Info("fsm_run_created", "run_id", id)
	return run, nil
}

// Result returns the run with the given ID
func (m *Machine) Result(id string) *update.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// handler adapts one orchestrator state to an FSM transition
func (m *Machine) handler(expect update.State) func(context.Context, *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	return func(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
		slog.Info("fsm_state_"+string(expect), "run_id", req.Msg.RunID)

		resp, err := m.transition(ctx, fsm.RetryFromContext(ctx), req.Msg.RunID, expect)
		if err != nil {
			// Every failure is final; the FSM must never retry a step.
			return nil, fsm.Abort(err)
		}
		return fsm.NewResponse(resp), nil
	}
}

// transition runs the orchestrator step for expect. Runs that already reached
// a terminal state pass through the remaining transitions unchanged.
func (m *Machine) transition(ctx context.Context, retry uint64, runID string, expect update.State) (*RunResponse, error) {
	run := m.Result(runID)
	if run == nil {
		slog.Error("fsm_run_not_found", "run_id", runID)
		return nil, fmt.Errorf("run %s not found", runID)
	}

	if retry > 0 {
		slog.Error("fsm_retry_refused", "run_id", runID, "state", expect, "retry", retry)
		return nil, fmt.Errorf("state %s of run %s is not retryable", expect, runID)
	}

	if run.Terminal() {
		return respond(run), nil
	}
	if run.State != expect {
		slog.Error("fsm_state_mismatch", "run_id", runID, "expected", expect, "actual", run.State)
		return nil, fmt.Errorf("run %s is in %s, expected %s", runID, run.State, expect)
	}

	stepErr := m.orch.Step(ctx, run)
	m.record(run)
	if stepErr != nil {
		return nil, stepErr
	}
	return respond(run), nil
}

func (m *Machine) record(run *update.Run) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Update(toRecord(run)); err != nil {
		slog.Warn("fsm_record_failed", "run_id", run.ID, "error", err)
	}
}

func respond(run *update.Run) *RunResponse {
	rec := toRecord(run)
	return &RunResponse{
		State:          rec.State,
		Outcome:        rec.Outcome,
		Serial:         rec.Serial,
		ProductLine:    rec.ProductLine,
		CurrentVersion: rec.CurrentVersion,
		BundledVersion: rec.BundledVersion,
		ImagePath:      rec.ImagePath,
		PostVersion:    rec.PostVersion,
		ErrorKind:      rec.ErrorKind,
		ErrorMessage:   rec.ErrorMessage,
	}
}

func toRecord(run *update.Run) *db.Run {
	rec := &db.Run{
		ID:             run.ID,
		State:          string(run.State),
		Outcome:        string(run.Outcome),
		CurrentVersion: run.Current,
		BundledVersion: run.Bundled,
	}
	if run.Pre != nil {
		rec.Serial = run.Pre.Serial
		rec.ProductLine = run.Pre.ProductLine
	}
	if run.Image != nil {
		rec.ImagePath = run.Image.Path
	}
	if run.Post != nil {
		rec.PostVersion = run.Post.FirmwareVersion
	}
	if run.Err != nil {
		rec.ErrorKind = string(run.Err.Kind)
		if run.Err.Err != nil {
			rec.ErrorMessage = run.Err.Error()
		}
	}
	return rec
}
