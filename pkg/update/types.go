package update

import (
	"fmt"

	"github.com/fwci/fw-updater/pkg/device"
	"github.com/fwci/fw-updater/pkg/locator"
)

// State is a workflow state.
type State string

const (
	StateInit         State = "init"
	StateDiscoverPre  State = "discover_pre"
	StateDecide       State = "decide"
	StateLocateImage  State = "locate_image"
	StateFlash        State = "flash"
	StateDiscoverPost State = "discover_post"
	StateVerify       State = "verify"

	// Terminal states
	StateSkipped   State = "skipped"
	StateNotNeeded State = "not_needed"
	StateDone      State = "done"
	StateAbort     State = "abort"
)

// Terminal reports whether no further step can run from s.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateNotNeeded, StateDone, StateAbort:
		return true
	}
	return false
}

// Outcome is produced once per run and drives the exit code.
type Outcome string

const (
	OutcomePending   Outcome = ""
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNotNeeded Outcome = "not-needed"
	OutcomeUpdatedOK Outcome = "updated-ok"
	OutcomeMismatch  Outcome = "updated-mismatch"
	OutcomeAborted   Outcome = "aborted"
)

// ExitCode maps an outcome to the process exit code.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSkipped, OutcomeNotNeeded, OutcomeUpdatedOK:
		return 0
	}
	return 1
}

// Kind classifies why a run stopped early.
type Kind string

const (
	KindEnvironmentUnsupported Kind = "environment_unsupported"
	KindFormat                 Kind = "format"
	KindTopology               Kind = "topology"
	KindLookup                 Kind = "lookup"
	KindExecution              Kind = "execution"
	KindCancelled              Kind = "cancelled"
)

// Error is the structured reason carried by the abort state. Key is the value
// that identifies the failure in the log: a device count, a search name, a
// product line, or the raw version strings.
type Error struct {
	Kind  Kind
	State State
	Key   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error in %s (%s)", e.Kind, e.State, e.Key)
	}
	return fmt.Sprintf("%s error in %s (%s): %v", e.Kind, e.State, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Run is the state of one update attempt.
type Run struct {
	ID      string
	State   State
	Trace   []State
	Pre     *device.Snapshot
	Post    *device.Snapshot
	Current string
	Bundled string
	Image   *locator.ImageRef
	Updater string
	Outcome Outcome
	Err     *Error

	session       device.Session
	testOpen      bool
	flashAttempts int
}

// Terminal reports whether the run has finished.
func (r *Run) Terminal() bool {
	return r.State.Terminal()
}

// FlashAttempts is the number of times the updater was invoked (0 or 1).
func (r *Run) FlashAttempts() int {
	return r.flashAttempts
}
