package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mj1618/mobile-mcp/internal/model"
	"github.com/mj1618/mobile-mcp/internal/observability"
	"github.com/mj1618/mobile-mcp/internal/platform"
	"go.uber.org/zap"
)

// Manager owns one session per device serial.
type Manager struct {
	provider *platform.Provider
	opts     Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager that opens devices through provider.
func NewManager(provider *platform.Provider, opts Options) *Manager {
	return &Manager{
		provider: provider,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for serial, opening it on first use. An empty
// serial selects the only online device. A session broken by an earlier
// driver error is probed and recovered when the device answers again;
// otherwise its calls keep failing fast.
func (m *Manager) Get(ctx context.Context, serial string) (*Session, error) {
	s, err := m.get(ctx, serial)
	if err != nil {
		return nil, err
	}
	if cause := s.Broken(); cause != nil {
		if err := s.Reconnect(ctx); err != nil {
			observability.GetLogger().Warn("session still broken",
				zap.String("device", s.Serial()),
				zap.NamedError("cause", cause),
				zap.Error(err))
		}
	}
	return s, nil
}

func (m *Manager) get(ctx context.Context, serial string) (*Session, error) {
	m.mu.Lock()
	if serial != "" {
		if s, ok := m.sessions[serial]; ok {
			m.mu.Unlock()
			return s, nil
		}
	}
	m.mu.Unlock()

	resolved, err := m.provider.ResolveSerial(ctx, serial)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[resolved]; ok {
		return s, nil
	}
	drv, err := m.provider.Open(resolved)
	if err != nil {
		return nil, &model.DriverError{Device: resolved, Op: "open", Err: err}
	}
	s := New(drv, m.opts)
	m.sessions[resolved] = s
	observability.GetLogger().Info("session opened",
		zap.String("device", resolved),
		zap.String("driver", m.provider.Name))
	return s, nil
}

// Devices lists the devices the provider can see.
func (m *Manager) Devices(ctx context.Context) ([]model.Device, error) {
	devices, err := m.provider.Devices.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// Open returns the serials with an open session.
func (m *Manager) Open() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	serials := make([]string, 0, len(m.sessions))
	for serial := range m.sessions {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	return serials
}

// Close drops the session for serial. Its history is discarded.
func (m *Manager) Close(serial string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[serial]; !ok {
		return false
	}
	delete(m.sessions, serial)
	return true
}
