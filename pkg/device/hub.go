package device

import (
	"context"
	"log/slog"
)

// DefaultHubVendorIDs are the USB vendor IDs of supported programmable hubs (Acroname).
var DefaultHubVendorIDs = []uint16{0x24ff}

// StaticHub is a hub whose availability is fixed, used when no hub is required
type StaticHub bool

func (h StaticHub) Available(ctx context.Context) (bool, error) {
	slog.Info("hub_static", "available", bool(h))
	return bool(h), nil
}
