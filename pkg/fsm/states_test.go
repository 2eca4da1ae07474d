package fsm

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/fwci/fw-updater/pkg/db"
	"github.com/fwci/fw-updater/pkg/device"
	"github.com/fwci/fw-updater/pkg/locator"
	"github.com/fwci/fw-updater/pkg/registry"
	"github.com/fwci/fw-updater/pkg/report"
	"github.com/fwci/fw-updater/pkg/update"
	"github.com/spf13/afero"
)

type stubRunner struct {
	calls int
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) error {
	r.calls++
	return nil
}

// enumeration returns the pre-flash firmware first and the bundled one after.
func enumeration(fws ...string) device.QueryFunc {
	i := 0
	return func(ctx context.Context) ([]byte, error) {
		fw := fws[min(i, len(fws)-1)]
		i++
		return []byte("Device info:\n    Serial Number : 838212073161\n    Firmware Version : " + fw + "\n    Product Line : D400\n"), nil
	}
}

func newMachine(t *testing.T, query device.QueryFunc, runner *stubRunner) (*Machine, *db.Repository) {
	t.Helper()

	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/src/common/fw/D4XX_FW_Image-5.13.0.50.bin", []byte("image"), 0644)
	afero.WriteFile(fs, "/src/build/rs-fw-update.exe", []byte("exe"), 0755)

	orch := update.New(update.Config{
		Hub:      device.StaticHub(true),
		Devices:  device.NewToolBackend(query),
		Registry: registry.Table{"D4XX": "5.13.0.50"},
		Images:   locator.New(fs, "/src", nil),
		Runner:   runner,
		Sink:     report.New(&bytes.Buffer{}, func(int) {}),
	})

	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewMachine(orch, repo), repo
}

var allStates = []update.State{
	update.StateInit,
	update.StateDiscoverPre,
	update.StateDecide,
	update.StateLocateImage,
	update.StateFlash,
	update.StateDiscoverPost,
	update.StateVerify,
}

func TestTransition_FullUpdate(t *testing.T) {
	runner := &stubRunner{}
	m, repo := newMachine(t, enumeration("05.12.00.10", "05.13.00.50"), runner)

	if _, err := m.Begin("run-1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	var resp *RunResponse
	for _, state := range allStates {
		var err error
		resp, err = m.transition(context.Background(), 0, "run-1", state)
		if err != nil {
			t.Fatalf("transition %s: %v", state, err)
		}
	}

	if resp.Outcome != string(update.OutcomeUpdatedOK) || resp.State != string(update.StateDone) {
		t.Errorf("final response = %+v", resp)
	}
	if runner.calls != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls)
	}

	rec, err := repo.Get("run-1")
	if err != nil || rec == nil {
		t.Fatalf("Get: %v, %v", rec, err)
	}
	if rec.Outcome != string(update.OutcomeUpdatedOK) || rec.Serial != "838212073161" ||
		rec.PostVersion != "05.13.00.50" || rec.ImagePath != "/src/common/fw/D4XX_FW_Image-5.13.0.50.bin" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestTransition_NotNeededPassesThrough(t *testing.T) {
	runner := &stubRunner{}
	m, repo := newMachine(t, enumeration("05.13.00.50"), runner)

	m.Begin("run-2")
	for _, state := range allStates {
		resp, err := m.transition(context.Background(), 0, "run-2", state)
		if err != nil {
			t.Fatalf("transition %s: %v", state, err)
		}
		if state == update.StateVerify && resp.Outcome != string(update.OutcomeNotNeeded) {
			t.Errorf("outcome = %q, want not-needed", resp.Outcome)
		}
	}

	if runner.calls != 0 {
		t.Errorf("runner called %d times, want 0", runner.calls)
	}
	rec, _ := repo.Get("run-2")
	if rec.State != string(update.StateNotNeeded) {
		t.Errorf("recorded state = %s", rec.State)
	}
}

func TestTransition_AbortIsRecorded(t *testing.T) {
	m, repo := newMachine(t, func(ctx context.Context) ([]byte, error) {
		return []byte("No device detected. Is it plugged in?\n"), nil
	}, &stubRunner{})

	m.Begin("run-3")
	if _, err := m.transition(context.Background(), 0, "run-3", update.StateInit); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := m.transition(context.Background(), 0, "run-3", update.StateDiscoverPre); err == nil {
		t.Fatal("expected abort with no devices")
	}

	rec, _ := repo.Get("run-3")
	if rec.Outcome != string(update.OutcomeAborted) || rec.ErrorKind != string(update.KindTopology) {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.ErrorMessage == "" {
		t.Error("abort reason not recorded")
	}

	// Later transitions pass through the finished run.
	if _, err := m.transition(context.Background(), 0, "run-3", update.StateDecide); err != nil {
		t.Errorf("transition after abort: %v", err)
	}
}

func TestTransition_RefusesRetry(t *testing.T) {
	runner := &stubRunner{}
	m, _ := newMachine(t, enumeration("05.12.00.10"), runner)

	m.Begin("run-4")
	for _, state := range allStates[:4] {
		if _, err := m.transition(context.Background(), 0, "run-4", state); err != nil {
			t.Fatalf("transition %s: %v", state, err)
		}
	}

	if _, err := m.transition(context.Background(), 1, "run-4", update.StateFlash); err == nil {
		t.Error("expected retried flash to be refused")
	}
	if runner.calls != 0 {
		t.Errorf("runner called %d times, want 0", runner.calls)
	}
}

func TestTransition_Errors(t *testing.T) {
	m, _ := newMachine(t, enumeration("05.12.00.10"), &stubRunner{})

	if _, err := m.transition(context.Background(), 0, "missing", update.StateInit); err == nil {
		t.Error("expected error for unknown run")
	}

	m.Begin("run-5")
	if _, err := m.Begin("run-5"); err == nil {
		t.Error("expected error for duplicate run")
	}
	if _, err := m.transition(context.Background(), 0, "run-5", update.StateDecide); err == nil {
		t.Error("expected error for out-of-order transition")
	}
}
