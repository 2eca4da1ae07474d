// Package flasher invokes the external firmware updater.
package flasher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/fwci/fw-updater/pkg/errors"
)

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExitError is returned when the command ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
}

// ExecRunner runs commands with os/exec and forwards their output to the log.
// It waits for the process to exit; there is no timeout.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	slog.Info("process_start", "command", name, "args", args)

	// The context is not bound to the process: a started flash is never killed.
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to attach stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to attach stderr")
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "not started")
	}
	if err := cmd.Start(); err != nil {
		slog.Error("process_start_failed", "command", name, "error", err)
		return errors.Wrap(err, "failed to start "+name)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go forward(&wg, name, "stdout", stdout)
	go forward(&wg, name, "stderr", stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Error("process_failed", "command", name, "exit_code", exitErr.ExitCode())
			return &ExitError{Command: name, Code: exitErr.ExitCode()}
		}
		slog.Error("process_wait_failed", "command", name, "error", err)
		return errors.Wrap(err, "failed waiting for "+name)
	}

	slog.Info("process_complete", "command", name)
	return nil
}

// maxLineSize bounds one logged output line.
const maxLineSize = 256 * 1024

// forward logs r line by line. Whatever cannot be scanned is still read to EOF
// so the process never blocks on a full pipe.
func forward(wg *sync.WaitGroup, name, stream string, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		slog.Info("process_output", "command", name, "stream", stream, "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("process_output_unreadable", "command", name, "stream", stream, "error", err)
	}
	if n, err := io.Copy(io.Discard, r); n > 0 || err != nil {
		slog.Warn("process_output_discarded", "command", name, "stream", stream, "bytes", n, "error", err)
	}
}
