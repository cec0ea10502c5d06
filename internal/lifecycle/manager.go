// ABOUTME: Lifecycle manager holding at most one live session
// ABOUTME: Stops any prior session before starting a new one and bounds the shutdown wait
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/sendspin-companion/internal/config"
	"github.com/Sendspin/sendspin-companion/internal/session"
	"go.uber.org/zap"
)

const defaultStopTimeout = 2 * time.Second

var (
	// ErrNoSession rejects commands when nothing is running
	ErrNoSession = fmt.Errorf("%w: no active session", session.ErrCommandRejected)

	// ErrDisabled is returned by Start while the player is disabled
	ErrDisabled = errors.New("player disabled")

	// ErrStopTimeout reports a session abandoned while still running
	ErrStopTimeout = errors.New("session did not stop in time")
)

// Runner is a session as seen by the manager
type Runner interface {
	Run(ctx context.Context) error
	Status() session.Status
	PlayerID() string
	Send(cmd session.Command) error
}

// SessionFactory builds a runner for one start
type SessionFactory func(cfg config.Config) Runner

// NewSessionFactory returns a factory creating sessions with the given options
func NewSessionFactory(opts ...session.Option) SessionFactory {
	return func(cfg config.Config) Runner {
		return session.New(cfg, opts...)
	}
}

// Handle is the running session created by Start
type Handle struct {
	runner Runner
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Status returns the session status
func (h *Handle) Status() session.Status {
	return h.runner.Status()
}

// PlayerID returns the session identity
func (h *Handle) PlayerID() string {
	return h.runner.PlayerID()
}

// Send forwards a command to the session
func (h *Handle) Send(cmd session.Command) error {
	return h.runner.Send(cmd)
}

// Done is closed when the session's Run returns
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error Run ended with. Only valid after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the session to exit
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// Manager owns the process's single session
type Manager struct {
	factory     SessionFactory
	log         *zap.Logger
	stopTimeout time.Duration
	enabled     atomic.Bool

	// opMu serializes Start and Stop, mu guards handle for status reads
	opMu   sync.Mutex
	mu     sync.RWMutex
	handle *Handle
}

// NewManager creates an enabled manager
func NewManager(factory SessionFactory, opts ...Option) *Manager {
	m := &Manager{
		factory:     factory,
		log:         zap.NewNop(),
		stopTimeout: defaultStopTimeout,
	}
	m.enabled.Store(true)

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start stops any running session, then starts one for cfg and returns its player id
func (m *Manager) Start(cfg config.Config) (string, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.enabled.Load() {
		return "", ErrDisabled
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	if err := m.stop(); err != nil {
		m.log.Warn("starting over an abandoned session", zap.Error(err))
	}

	runner := m.factory(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		runner: runner,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		if err := runner.Run(ctx); err != nil {
			h.err = err
			m.log.Error("session ended", zap.Error(err))
		}
	}()

	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()

	m.log.Info("session started",
		zap.String("player_id", runner.PlayerID()),
		zap.String("server", cfg.ServerURL))

	return runner.PlayerID(), nil
}

// Stop ends the running session, waiting up to the stop timeout
func (m *Manager) Stop() {
	_ = m.Shutdown()
}

// Shutdown is Stop that reports ErrStopTimeout when the session was
// abandoned and may still be using shared resources.
func (m *Manager) Shutdown() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.stop()
}

func (m *Manager) stop() error {
	m.mu.RLock()
	h := m.handle
	m.mu.RUnlock()

	if h == nil {
		return nil
	}

	h.cancel()

	timer := time.NewTimer(m.stopTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-h.done:
		m.log.Info("session stopped", zap.String("player_id", h.PlayerID()))
	case <-timer.C:
		err = ErrStopTimeout
		m.log.Warn("session did not stop in time, abandoning it",
			zap.String("player_id", h.PlayerID()),
			zap.Duration("timeout", m.stopTimeout))
	}

	m.mu.Lock()
	m.handle = nil
	m.mu.Unlock()
	return err
}

// Current returns the running session handle, or nil
func (m *Manager) Current() *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

// Status returns the running session's status, or Disconnected
func (m *Manager) Status() session.Status {
	if h := m.Current(); h != nil {
		return h.Status()
	}
	return session.Status{State: session.StateDisconnected}
}

// PlayerID returns the running session's identity
func (m *Manager) PlayerID() (string, error) {
	if h := m.Current(); h != nil {
		return h.PlayerID(), nil
	}
	return "", ErrNoSession
}

// SendCommand forwards a command to the running session
func (m *Manager) SendCommand(cmd session.Command) error {
	h := m.Current()
	if h == nil {
		return ErrNoSession
	}
	return h.Send(cmd)
}

// Enabled reports whether Start is allowed
func (m *Manager) Enabled() bool {
	return m.enabled.Load()
}

// SetEnabled toggles the player. Disabling stops the running session.
func (m *Manager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	if !enabled {
		m.Stop()
	}
}
