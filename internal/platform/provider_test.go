package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/mj1618/mobile-mcp/internal/config"
	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	devices []model.Device
	err     error
}

func (s staticLister) ListDevices(context.Context) ([]model.Device, error) {
	return s.devices, s.err
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(config.DeviceConfig{Driver: "no-such-driver"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-driver")
}

func TestRegister(t *testing.T) {
	Register("test-static", func(cfg config.DeviceConfig) (*Provider, error) {
		return &Provider{Name: "test-static", Devices: staticLister{}}, nil
	})
	t.Cleanup(func() {
		mu.Lock()
		delete(providers, "test-static")
		mu.Unlock()
	})

	assert.Contains(t, Registered(), "test-static")
	p, err := NewProvider(config.DeviceConfig{Driver: "test-static"})
	require.NoError(t, err)
	assert.Equal(t, "test-static", p.Name)

	assert.Panics(t, func() {
		Register("test-static", func(config.DeviceConfig) (*Provider, error) { return nil, nil })
	})
}

func TestResolveSerial(t *testing.T) {
	ctx := context.Background()

	p := &Provider{Devices: staticLister{devices: []model.Device{
		{Serial: "emulator-5554", State: "device"},
		{Serial: "R58M", State: "unauthorized"},
	}}}
	serial, err := p.ResolveSerial(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", serial)

	serial, err = p.ResolveSerial(ctx, "R58M")
	require.NoError(t, err)
	assert.Equal(t, "R58M", serial)

	p = &Provider{Devices: staticLister{}}
	_, err = p.ResolveSerial(ctx, "")
	assert.ErrorContains(t, err, "no online device")

	p = &Provider{Devices: staticLister{devices: []model.Device{
		{Serial: "a", State: "device"},
		{Serial: "b", State: "device"},
	}}}
	_, err = p.ResolveSerial(ctx, "")
	assert.ErrorContains(t, err, "2 devices online")

	boom := errors.New("adb missing")
	p = &Provider{Devices: staticLister{err: boom}}
	_, err = p.ResolveSerial(ctx, "")
	assert.ErrorIs(t, err, boom)
}
