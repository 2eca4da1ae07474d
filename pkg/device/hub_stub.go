//go:build !linux || !cgo

package device

import (
	"context"
	"log/slog"
	"runtime"
)

// USBHub is a no-op hub probe for platforms without libusb support
type USBHub struct{}

// NewUSBHub creates a stub hub probe on unsupported platforms
func NewUSBHub(vendorIDs []uint16) *USBHub {
	return &USBHub{}
}

// Available always reports false
func (h *USBHub) Available(ctx context.Context) (bool, error) {
	slog.Warn("hub_probe_unsupported", "platform", runtime.GOOS)
	return false, nil
}
