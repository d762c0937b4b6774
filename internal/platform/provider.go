package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mj1618/mobile-mcp/internal/config"
)

// Provider bundles a driver backend: device discovery plus a way to open a
// driver for one serial.
type Provider struct {
	Name    string
	Devices DeviceLister
	Open    func(serial string) (Driver, error)
}

// ProviderFunc builds a Provider from device configuration.
type ProviderFunc func(cfg config.DeviceConfig) (*Provider, error)

var (
	mu        sync.RWMutex
	providers = make(map[string]ProviderFunc)
)

// Register makes a driver backend available by name. It is called from
// init() in backend packages; see internal/platform/android.
func Register(name string, fn ProviderFunc) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		panic("platform: Register provider is nil")
	}
	if _, dup := providers[name]; dup {
		panic("platform: Register called twice for provider " + name)
	}
	providers[name] = fn
}

// Registered returns the names of all registered backends, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider returns the backend named by cfg.Driver.
func NewProvider(cfg config.DeviceConfig) (*Provider, error) {
	mu.RLock()
	fn, ok := providers[cfg.Driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown device driver %q (registered: %v)", cfg.Driver, Registered())
	}
	return fn(cfg)
}

// ResolveSerial picks the device to use when serial is empty: the single
// online device. It fails when none or several are attached.
func (p *Provider) ResolveSerial(ctx context.Context, serial string) (string, error) {
	if serial != "" {
		return serial, nil
	}
	devices, err := p.Devices.ListDevices(ctx)
	if err != nil {
		return "", err
	}
	var online []string
	for _, d := range devices {
		if d.Online() {
			online = append(online, d.Serial)
		}
	}
	switch len(online) {
	case 0:
		return "", fmt.Errorf("no online device found; connect one or pass --device")
	case 1:
		return online[0], nil
	default:
		return "", fmt.Errorf("%d devices online (%v); pass --device to choose one", len(online), online)
	}
}
