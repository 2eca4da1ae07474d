package fsm

import "github.com/fwci/fw-updater/pkg/update"

// RunRequest is the FSM input
type RunRequest struct {
	RunID string
}

// RunResponse is the FSM output (accumulated across transitions)
type RunResponse struct {
	State   string
	Outcome string

	// From decide
	Serial         string
	ProductLine    string
	CurrentVersion string
	BundledVersion string

	// From locate_image
	ImagePath string

	// From verify
	PostVersion string

	// From abort
	ErrorKind    string
	ErrorMessage string
}

// State names, one per orchestrator step
const (
	StateInit         = string(update.StateInit)
	StateDiscoverPre  = string(update.StateDiscoverPre)
	StateDecide       = string(update.StateDecide)
	StateLocateImage  = string(update.StateLocateImage)
	StateFlash        = string(update.StateFlash)
	StateDiscoverPost = string(update.StateDiscoverPost)
	StateVerify       = string(update.StateVerify)
	StateFinished     = "finished"
)
