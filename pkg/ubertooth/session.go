package ubertooth

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/gotooth/pkg/stream"
)

// State tracks where a Manager is in the session lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateStreaming
	StateReconnecting
	StateError
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	State        string        `json:"state"`
	Connected    bool          `json:"connected"`
	Info         *Info         `json:"info,omitempty"`
	Config       *Config       `json:"config,omitempty"`
	Capabilities []string      `json:"capabilities,omitempty"`
	Stream       *stream.Stats `json:"stream,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Manager owns at most one device session: enumeration, the connect
// handshake, the single active stream, and the reconnect policy after
// device loss. Ownership of the device moves with Connect/Disconnect and
// is never shared between managers.
type Manager struct {
	usbCtx *gousb.Context

	mu      sync.Mutex
	state   State
	index   int
	device  *Device
	session *stream.Session
	lastErr error
}

// NewManager creates a session manager with its own USB context.
func NewManager() *Manager {
	return &Manager{
		usbCtx: gousb.NewContext(),
		state:  StateDisconnected,
	}
}

// List enumerates attached devices without claiming them.
func (m *Manager) List() ([]DeviceInfo, error) {
	return List(m.usbCtx)
}

// open claims the device at index and runs the identification handshake.
func open(usbCtx *gousb.Context, index int) (*Device, error) {
	tr, usbInfo, err := openTransport(usbCtx, index)
	if err != nil {
		return nil, err
	}
	dev := newDevice(tr, usbInfo)
	if err := dev.handshake(); err != nil {
		tr.Close()
		return nil, err
	}
	return dev, nil
}

// Connect opens the device at the given enumeration index (0 = first
// found) and takes ownership of it.
func (m *Manager) Connect(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDisconnected && m.state != StateError {
		return fmt.Errorf("%w: session already holds a device", ErrAlreadyInUse)
	}

	dev, err := open(m.usbCtx, index)
	if err != nil {
		return err
	}

	m.device = dev
	m.index = index
	m.state = StateConnected
	m.lastErr = nil
	log.Infof("connected to %s", dev)
	return nil
}

// Disconnect stops any active stream, closes the device and releases
// ownership. Safe to call repeatedly.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.device != nil {
		err = m.device.Close()
		m.device = nil
		log.Info("disconnected")
	}
	m.state = StateDisconnected
	m.lastErr = nil
	return err
}

// Close disconnects and tears down the USB context.
func (m *Manager) Close() error {
	err := m.Disconnect()
	if cerr := m.usbCtx.Close(); err == nil {
		err = cerr
	}
	return err
}

// Device returns the connected device, or nil outside a session.
func (m *Manager) Device() *Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device
}

// Capabilities reports what the connected board and firmware support.
func (m *Manager) Capabilities() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil, ErrNotConnected
	}
	return m.device.Info().Capabilities(), nil
}

// Status reports the session state with the latest device snapshot and
// stream counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:     m.state.String(),
		Connected: m.state == StateConnected || m.state == StateStreaming,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	if m.device != nil {
		info := m.device.Info()
		cfg := m.device.Config()
		st.Info = &info
		st.Config = &cfg
		st.Capabilities = info.Capabilities()
	}
	if m.session != nil {
		stats := m.session.Stats()
		st.Stream = &stats
	}
	return st
}

// StartStream begins the bulk capture pipeline. The caller puts the
// firmware into a streaming mode first (StartBTLESniff, StartSpecan,
// StartRxSymbols). One stream session per device.
func (m *Manager) StartStream(cfg stream.Config) (*stream.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateStreaming:
		return nil, stream.ErrSessionActive
	case StateConnected:
	default:
		return nil, fmt.Errorf("%w: state %s", ErrNotConnected, m.state)
	}

	userCb := cfg.OnDeviceLost
	cfg.OnDeviceLost = func(cause error) {
		if userCb != nil {
			userCb(cause)
		}
		m.handleDeviceLost(cause)
	}

	sess, err := stream.NewEngine(m.device, cfg).Start()
	if err != nil {
		return nil, err
	}
	m.session = sess
	m.state = StateStreaming
	log.Infof("stream started (pool %d)", cfg.PoolSize)
	return sess, nil
}

// StopStream ends the active stream session and returns its final
// counters. With no session active it is a no-op.
func (m *Manager) StopStream() (stream.Stats, error) {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess == nil {
		return stream.Stats{}, nil
	}

	stats, err := sess.Stop()

	m.mu.Lock()
	if m.session == sess {
		m.session = nil
		if m.state == StateStreaming {
			m.state = StateConnected
		}
	}
	m.mu.Unlock()
	return stats, err
}

// handleDeviceLost runs the reconnect policy: close the dead handle,
// retry the open with linear backoff, and replay the config mirror onto
// the fresh firmware. Runs on the stream engine's notification
// goroutine.
func (m *Manager) handleDeviceLost(cause error) {
	m.mu.Lock()
	if m.state == StateDisconnected || m.device == nil {
		m.mu.Unlock()
		return
	}
	log.Warnf("device lost: %v", cause)
	m.state = StateReconnecting
	m.lastErr = cause
	m.session = nil
	cfg := m.device.Config()
	m.device.Close()
	m.device = nil
	index := m.index
	m.mu.Unlock()

	for attempt := 1; attempt <= ReconnectAttempts; attempt++ {
		time.Sleep(time.Duration(attempt) * ReconnectBackoff)
		log.Infof("reconnect attempt %d/%d", attempt, ReconnectAttempts)

		dev, err := open(m.usbCtx, index)
		if err != nil {
			log.Debugf("reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		if err := dev.ApplyConfig(cfg); err != nil {
			log.Debugf("reconnect attempt %d: config restore failed: %v", attempt, err)
			dev.Close()
			continue
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			// Disconnect won the race; drop the fresh handle.
			m.mu.Unlock()
			dev.Close()
			return
		}
		m.device = dev
		m.state = StateConnected
		m.lastErr = nil
		m.mu.Unlock()
		log.Infof("reconnected to %s", dev)
		return
	}

	m.mu.Lock()
	if m.state == StateReconnecting {
		m.state = StateError
		m.lastErr = fmt.Errorf("%w: gave up after %d reconnect attempts", ErrDeviceLost, ReconnectAttempts)
	}
	m.mu.Unlock()
	log.Errorf("reconnect failed after %d attempts", ReconnectAttempts)
}
