package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/fwci/fw-updater/pkg/errors"
)

// DefaultEnumerateCommand lists connected devices with their info blocks.
var DefaultEnumerateCommand = []string{"rs-enumerate-devices"}

// Info is a device handle backed by the attributes printed by the enumeration tool
type Info map[AttributeKind]string

func (i Info) Attribute(kind AttributeKind) (string, error) {
	v, ok := i[kind]
	if !ok || v == "" {
		return "", fmt.Errorf("device attribute %q not reported", kind)
	}
	return v, nil
}

// ParseEnumeration reads "Device info:" blocks of "Key : value" lines.
// A block ends at the first blank or non-indented line.
func ParseEnumeration(r io.Reader) ([]Info, error) {
	var devices []Info
	var cur Info

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "Device info") {
			cur = Info{}
			devices = append(devices, cur)
			continue
		}
		if cur == nil {
			continue
		}
		if trimmed == "" || (line[0] != ' ' && line[0] != '\t') {
			cur = nil
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		cur[AttributeKind(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read enumeration output")
	}
	return devices, nil
}

// QueryFunc returns the raw output of the enumeration tool
type QueryFunc func(ctx context.Context) ([]byte, error)

// CommandQuery runs an external enumeration command
func CommandQuery(command []string) QueryFunc {
	return func(ctx context.Context) ([]byte, error) {
		if len(command) == 0 {
			return nil, fmt.Errorf("enumeration command is empty")
		}
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			slog.Error("enumerate_command_failed", "command", command, "stderr", strings.TrimSpace(stderr.String()), "error", err)
			return nil, errors.Wrap(err, "enumeration command failed")
		}
		return out, nil
	}
}

// ToolBackend discovers devices by running an enumeration tool
type ToolBackend struct {
	query QueryFunc
}

// NewToolBackend creates a backend around a query function
func NewToolBackend(query QueryFunc) *ToolBackend {
	return &ToolBackend{query: query}
}

// Open starts a discovery session
func (b *ToolBackend) Open(ctx context.Context) (Session, error) {
	slog.Info("discovery_session_open")
	return &toolSession{query: b.query}, nil
}

type toolSession struct {
	query  QueryFunc
	last   map[string]bool
	closed bool
}

func (s *toolSession) Discover(ctx context.Context, monitorChanges bool) ([]Handle, error) {
	if s.closed {
		return nil, fmt.Errorf("discovery session is closed")
	}

	out, err := s.query(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := ParseEnumeration(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(infos))
	handles := make([]Handle, 0, len(infos))
	for _, info := range infos {
		serial := info[AttrSerialNumber]
		seen[serial] = true
		handles = append(handles, info)
		if monitorChanges && s.last != nil && !s.last[serial] {
			slog.Info("device_added", "serial", serial)
		}
	}
	if monitorChanges && s.last != nil {
		for serial := range s.last {
			if !seen[serial] {
				slog.Info("device_removed", "serial", serial)
			}
		}
	}
	s.last = seen

	slog.Info("discovery_complete", "device_count", len(handles))
	return handles, nil
}

func (s *toolSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.last = nil
	slog.Info("discovery_session_closed")
	return nil
}
