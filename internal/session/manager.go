// Package session owns the single bridge client and the authentication
// state machine driving it.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bridge"
	"github.com/osari/wabridge/internal/bus"
)

// MaxInitAttempts caps how many times Initialize may contact the
// bridge over a process lifetime. Close does not reset the counter.
const MaxInitAttempts = 3

const qrImageSize = 256

// Status is the caller-visible session snapshot.
type Status struct {
	State    State  `json:"state"`
	QRCode   string `json:"qrCode,omitempty"`
	Attempts int    `json:"attempts"`
}

// Manager drives the authentication state machine on top of the bridge
// factory and owns the resulting client handle.
type Manager struct {
	factory bridge.Factory
	opts    bridge.Options
	bus     *bus.Bus
	logger  *zap.Logger

	// initMu serializes Initialize end to end so the attempt-budget
	// check-then-increment cannot race.
	initMu sync.Mutex

	mu       sync.RWMutex
	client   bridge.Client
	state    State
	qrCode   string
	attempts int
}

// NewManager creates a manager in the Uninitialized state. No bridge
// work happens until the first Initialize call.
func NewManager(factory bridge.Factory, opts bridge.Options, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		factory: factory,
		opts:    opts,
		bus:     b,
		logger:  logger,
		state:   Uninitialized,
	}
}

// Initialize creates the bridge client if none is live. With a healthy
// client it is idempotent and returns the current status. Once the
// attempt budget is exhausted it fails with ErrRetryBudgetExhausted
// without contacting the bridge.
func (m *Manager) Initialize(ctx context.Context) (Status, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.client != nil && m.state != Errored && m.state != Closed {
		st := m.statusLocked()
		m.mu.Unlock()
		return st, nil
	}
	if m.attempts >= MaxInitAttempts {
		m.setStateLocked(Errored)
		st := m.statusLocked()
		m.mu.Unlock()
		return st, ErrRetryBudgetExhausted
	}
	m.attempts++
	m.setStateLocked(Initializing)
	m.mu.Unlock()

	// The factory may fire the QR callback before it returns, so it
	// runs outside the state lock.
	client, err := m.factory(ctx, m.opts, m.onQR, m.onStatus)

	m.mu.Lock()
	if err != nil {
		m.logger.Error("bridge client creation failed", zap.Error(err), zap.Int("attempt", m.attempts))
		m.client = nil
		m.setStateLocked(Errored)
		st := m.statusLocked()
		m.mu.Unlock()
		return st, fmt.Errorf("%w: %v", ErrBridgeInitFailure, err)
	}
	if m.state == Errored || m.state == Closed {
		// A status callback tore the session down while the factory
		// was still running. The fresh handle must not survive that,
		// or a retry would overwrite it without Close and leave two
		// live clients. Close runs outside the lock because the
		// bridge may fire callbacks during teardown.
		st := m.statusLocked()
		m.mu.Unlock()
		if cErr := client.Close(); cErr != nil {
			m.logger.Warn("bridge client close failed", zap.Error(cErr))
		}
		m.logger.Warn("bridge torn down during initialization", zap.Int("attempt", m.attempts))
		return st, fmt.Errorf("%w: bridge closed during initialization", ErrBridgeInitFailure)
	}

	m.client = client
	m.logger.Info("bridge client created", zap.Int("attempt", m.attempts))
	st := m.statusLocked()
	m.mu.Unlock()
	return st, nil
}

// Status returns the current session snapshot. Pure read, safe at any
// call frequency.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

// Client returns the live client when the session is authenticated,
// or ErrUnauthenticated.
func (m *Manager) Client() (bridge.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || m.state != Authenticated {
		return nil, ErrUnauthenticated
	}
	return m.client, nil
}

// Authenticated reports whether the session currently holds a live
// authenticated client.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil && m.state == Authenticated
}

// Close releases the client handle and moves the session to Closed.
// Idempotent. The attempt counter deliberately survives: only a
// process restart resets the budget.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Warn("bridge client close failed", zap.Error(err))
		}
		m.client = nil
	}
	m.qrCode = ""
	m.setStateLocked(Closed)
}

func (m *Manager) onQR(code string) {
	payload, err := renderQR(code)
	if err != nil {
		m.logger.Warn("QR render failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Closed {
		return
	}
	m.qrCode = payload
	m.setStateLocked(AwaitingScan)
	m.logger.Info("new QR code received")
}

func (m *Manager) onStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("bridge status changed", zap.String("status", status))

	switch status {
	case bridge.StatusLogged:
		m.qrCode = ""
		m.setStateLocked(Authenticated)
	case bridge.StatusNotLogged:
		m.setStateLocked(AwaitingScan)
	case bridge.StatusBrowserClose:
		if m.client != nil {
			_ = m.client.Close()
			m.client = nil
		}
		m.setStateLocked(Errored)
	}
}

// setStateLocked applies a transition under m.mu, enforcing the edge
// table and announcing the change on the bus.
func (m *Manager) setStateLocked(to State) {
	if m.state == to {
		return
	}
	if !canTransition(m.state, to) {
		m.logger.Warn("invalid session transition",
			zap.String("from", string(m.state)),
			zap.String("to", string(to)))
		return
	}
	m.state = to
	if m.bus != nil {
		m.bus.PublishKind("session.state_changed", to)
	}
}

func (m *Manager) statusLocked() Status {
	return Status{State: m.state, QRCode: m.qrCode, Attempts: m.attempts}
}

// renderQR turns the bridge's pairing code into the opaque image
// payload exposed over the API.
func renderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
