// Package version compares dotted firmware version strings.
//
// A version is a sequence of non-negative integers written as "5.13.0.50".
// Two versions are comparable only when they have the same number of
// components; there are no ranges, pre-release tags or wildcards.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatError reports that two version strings cannot be compared, either
// because one of them does not parse or because their component counts differ.
type FormatError struct {
	Current   string
	Candidate string
	Reason    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("version: cannot compare %q with %q: %s", e.Current, e.Candidate, e.Reason)
}

// Parse splits a dotted version string into its integer components.
func Parse(raw string) ([]uint64, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty version")
	}
	parts := strings.Split(raw, ".")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("component %d of %q is not a non-negative integer", i, raw)
		}
		out[i] = n
	}
	return out, nil
}

// IsNewer reports whether candidate is strictly newer than current.
// Equal versions are never newer.
func IsNewer(current, candidate string) (bool, error) {
	cur, err := Parse(current)
	if err != nil {
		return false, &FormatError{Current: current, Candidate: candidate, Reason: err.Error()}
	}
	cand, err := Parse(candidate)
	if err != nil {
		return false, &FormatError{Current: current, Candidate: candidate, Reason: err.Error()}
	}
	if len(cur) != len(cand) {
		return false, &FormatError{
			Current:   current,
			Candidate: candidate,
			Reason:    fmt.Sprintf("component count %d != %d", len(cur), len(cand)),
		}
	}
	for i := range cur {
		if cur[i] != cand[i] {
			return cand[i] > cur[i], nil
		}
	}
	return false, nil
}

// Pretty normalises a device-reported version such as "05.13.00.50" to
// "5.13.0.50". Strings that do not parse are returned unchanged so the
// comparison can report them.
func Pretty(raw string) string {
	parts, err := Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strconv.FormatUint(p, 10)
	}
	return strings.Join(out, ".")
}
