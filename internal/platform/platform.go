package platform

import (
	"context"

	"github.com/mj1618/mobile-mcp/internal/model"
)

// Driver talks to one device. Every method may block on the device and
// returns *model.DriverError when the device cannot be reached.
type Driver interface {
	// Serial returns the device serial the driver is bound to.
	Serial() string

	// Snapshot returns the raw uiautomator hierarchy XML.
	Snapshot(ctx context.Context) ([]byte, error)

	// Dispatch performs a single action on the device.
	Dispatch(ctx context.Context, action model.Action) error

	// ScreenSize returns the effective display size in pixels.
	ScreenSize(ctx context.Context) (model.Size, error)
}

// Screenshotter captures the device screen as PNG bytes.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// AppManager lists installed applications and reports the foreground one.
// Launching and terminating go through Driver.Dispatch.
type AppManager interface {
	ListPackages(ctx context.Context, thirdPartyOnly bool) ([]string, error)
	CurrentPackage(ctx context.Context) (string, error)
}

// Installer installs and removes application packages.
type Installer interface {
	Install(ctx context.Context, apkPath string) error
	Uninstall(ctx context.Context, pkg string) error
}

// Rotator reads and locks the display orientation.
type Rotator interface {
	Orientation(ctx context.Context) (model.Orientation, error)
	SetOrientation(ctx context.Context, o model.Orientation) error
}

// DeviceLister enumerates attached devices.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]model.Device, error)
}

// Recognizer locates a described target in an image region. It is
// implemented outside this module.
type Recognizer interface {
	Locate(ctx context.Context, req model.VisionRequest) (model.Point, error)
}
