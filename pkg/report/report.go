// Package report records test checks for a run and turns them into a
// process exit code.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sync"
)

// Sink is the test reporting collaborator.
type Sink interface {
	Begin(name string)
	CheckEqual(actual, expected any) bool
	UnexpectedException(err error)
	Finish()
	ReportAndExit()
}

// TestResult is a finished test.
type TestResult struct {
	Name     string
	Checks   int
	Failures []string
}

// Passed reports whether the test has no failed checks.
func (t TestResult) Passed() bool {
	return len(t.Failures) == 0
}

// Reporter is a Sink that prints a summary to w and exits through exit.
type Reporter struct {
	w    io.Writer
	exit func(int)

	mu      sync.Mutex
	current *TestResult
	results []TestResult
	errors  []string
}

// New creates a reporter. A nil exit defaults to os.Exit.
func New(w io.Writer, exit func(int)) *Reporter {
	if exit == nil {
		exit = os.Exit
	}
	return &Reporter{w: w, exit: exit}
}

// Begin starts a named test. A test still open is finished first.
func (r *Reporter) Begin(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.finishLocked()
	}
	slog.Info("test_begin", "test", name)
	r.current = &TestResult{Name: name}
}

// CheckEqual records a check and returns whether it passed.
func (r *Reporter) CheckEqual(actual, expected any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok := reflect.DeepEqual(actual, expected)
	msg := fmt.Sprintf("check failed; received %v, expected %v", actual, expected)

	if r.current == nil {
		if !ok {
			r.errors = append(r.errors, msg)
		}
	} else {
		r.current.Checks++
		if !ok {
			r.current.Failures = append(r.current.Failures, msg)
		}
	}

	if ok {
		slog.Info("check_passed", "value", actual)
	} else {
		slog.Error("check_failed", "actual", actual, "expected", expected)
	}
	return ok
}

// UnexpectedException records a fault without propagating it. Outside a test
// it counts as a run error.
func (r *Reporter) UnexpectedException(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := fmt.Sprintf("unexpected exception: %v", err)
	slog.Error("unexpected_exception", "error", err)
	if r.current == nil {
		r.errors = append(r.errors, msg)
		return
	}
	r.current.Checks++
	r.current.Failures = append(r.current.Failures, msg)
}

// Finish closes the current test.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked()
}

func (r *Reporter) finishLocked() {
	if r.current == nil {
		return
	}
	res := *r.current
	r.results = append(r.results, res)
	r.current = nil
	slog.Info("test_finish", "test", res.Name, "checks", res.Checks, "passed", res.Passed())
}

// Results returns the finished tests.
func (r *Reporter) Results() []TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TestResult(nil), r.results...)
}

// ExitCode is 1 when any test failed or any error was recorded, else 0.
func (r *Reporter) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.errors) > 0 {
		return 1
	}
	for _, res := range r.results {
		if !res.Passed() {
			return 1
		}
	}
	return 0
}

// ReportAndExit prints the summary and exits with ExitCode.
func (r *Reporter) ReportAndExit() {
	r.Finish()

	r.mu.Lock()
	failed := 0
	for _, res := range r.results {
		if res.Passed() {
			continue
		}
		failed++
		for _, f := range res.Failures {
			fmt.Fprintf(r.w, "%s: %s\n", res.Name, f)
		}
	}
	for _, e := range r.errors {
		fmt.Fprintf(r.w, "error: %s\n", e)
	}
	switch {
	case len(r.results) == 0 && len(r.errors) == 0:
		fmt.Fprintln(r.w, "No tests were run")
	case failed == 0 && len(r.errors) == 0:
		fmt.Fprintf(r.w, "All tests passed (%d)\n", len(r.results))
	default:
		fmt.Fprintf(r.w, "%d of %d tests failed, %d errors\n", failed, len(r.results), len(r.errors))
	}
	r.mu.Unlock()

	r.exit(r.ExitCode())
}
