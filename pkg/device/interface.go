package device

import (
	"context"
	"fmt"
)

// AttributeKind names a device attribute that can be queried from a handle.
type AttributeKind string

const (
	AttrName            AttributeKind = "Name"
	AttrSerialNumber    AttributeKind = "Serial Number"
	AttrFirmwareVersion AttributeKind = "Firmware Version"
	AttrProductLine     AttributeKind = "Product Line"
)

// Handle is a device returned by a discovery session
type Handle interface {
	// Attribute returns the raw value of an attribute
	Attribute(kind AttributeKind) (string, error)
}

// Session is an open discovery session
type Session interface {
	// Discover queries the connected devices. With monitorChanges set the
	// session reports devices added or removed since the previous query.
	Discover(ctx context.Context, monitorChanges bool) ([]Handle, error)

	// Close releases the session
	Close() error
}

// Backend opens discovery sessions
type Backend interface {
	Open(ctx context.Context) (Session, error)
}

// Hub reports whether the hardware control layer needed for discovery is present
type Hub interface {
	Available(ctx context.Context) (bool, error)
}

// Snapshot is an immutable read of a single device
type Snapshot struct {
	Serial          string
	FirmwareVersion string
	ProductLine     string
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s [%s] fw %s", s.Serial, s.ProductLine, s.FirmwareVersion)
}

// Capture reads the snapshot attributes from a handle
func Capture(h Handle) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Serial, err = h.Attribute(AttrSerialNumber); err != nil {
		return Snapshot{}, fmt.Errorf("read serial number: %w", err)
	}
	if snap.FirmwareVersion, err = h.Attribute(AttrFirmwareVersion); err != nil {
		return Snapshot{}, fmt.Errorf("read firmware version of %s: %w", snap.Serial, err)
	}
	if snap.ProductLine, err = h.Attribute(AttrProductLine); err != nil {
		return Snapshot{}, fmt.Errorf("read product line of %s: %w", snap.Serial, err)
	}
	return snap, nil
}
