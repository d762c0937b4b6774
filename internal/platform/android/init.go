package android

import (
	"context"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/platform"
)

func init() {
	platform.Register("adb", func(cfg config.DeviceConfig) (*platform.Provider, error) {
		path := cfg.ADBPath
		if path == "" {
			path = "adb"
		}
		return NewProvider(execRunner{path: path, timeout: cfg.CommandTimeout}, cfg.DumpPath), nil
	})
}

// NewProvider returns an adb-backed provider that runs commands through run.
func NewProvider(run Runner, dumpPath string) *platform.Provider {
	return &platform.Provider{
		Name:    "adb",
		Devices: lister{run: run},
		Open: func(serial string) (platform.Driver, error) {
			return NewDriver(serial, run, dumpPath), nil
		},
	}
}

type lister struct{ run Runner }

func (l lister) ListDevices(ctx context.Context) ([]model.Device, error) {
	out, err := l.run.Run(ctx, "devices", "-l")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &model.DriverError{Op: "list_devices", Err: err}
	}
	return parseDevices(out), nil
}
