//go:build linux && cgo

package device

import (
	"context"
	"log/slog"

	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/google/gousb"
)

// USBHub probes the USB bus for a programmable hub
type USBHub struct {
	vendorIDs []gousb.ID
}

// NewUSBHub creates a hub probe matching any of the given vendor IDs
func NewUSBHub(vendorIDs []uint16) *USBHub {
	ids := make([]gousb.ID, len(vendorIDs))
	for i, id := range vendorIDs {
		ids[i] = gousb.ID(id)
	}
	return &USBHub{vendorIDs: ids}
}

// Available reports whether at least one hub is attached. Devices are only
// matched by descriptor and never opened.
func (h *USBHub) Available(ctx context.Context) (bool, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	found := 0
	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, id := range h.vendorIDs {
			if desc.Vendor == id {
				slog.Info("hub_found", "vendor", desc.Vendor.String(), "product", desc.Product.String(), "bus", desc.Bus, "address", desc.Address)
				found++
			}
		}
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil && found == 0 {
		slog.Error("hub_probe_failed", "error", err)
		return false, errors.Wrap(err, "failed to enumerate USB devices")
	}

	slog.Info("hub_probe_complete", "hub_count", found)
	return found > 0, nil
}
