// ABOUTME: Session protocol loop for one connection to a Sendspin server
// ABOUTME: Drives auth and handshake, then multiplexes audio, control, clock and command traffic
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/sendspin-companion/internal/config"
	"github.com/Sendspin/sendspin-companion/internal/nowplaying"
	"github.com/Sendspin/sendspin-companion/internal/scheduler"
	internalsync "github.com/Sendspin/sendspin-companion/internal/sync"
	"github.com/Sendspin/sendspin-companion/internal/version"
	"github.com/Sendspin/sendspin-companion/pkg/audio"
	"github.com/Sendspin/sendspin-companion/pkg/audio/decode"
	"github.com/Sendspin/sendspin-companion/pkg/audio/output"
	"github.com/Sendspin/sendspin-companion/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultAuthTimeout  = 5 * time.Second
	defaultHelloTimeout = 10 * time.Second
	defaultSyncInterval = 5 * time.Second
	helloAttempts       = 3
	writeWait           = 5 * time.Second
	commandQueueSize    = 32
	frameBacklog        = 64
	bufferCapacity      = 480000
	protocolVersion     = 1
)

// Engine plays chunks drained from the scheduler
type Engine interface {
	Start(src output.Source)
	Stop()
	SetVolume(volume int)
	SetMuted(muted bool)
	Volume() int
	Muted() bool
}

// Stats is a point-in-time view of a session
type Stats struct {
	Clock     internalsync.Stats
	Scheduler scheduler.Stats
	Dropped   int64 // Inbound frames discarded as malformed or unplayable
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithSink sets where now-playing snapshots are pushed
func WithSink(sink nowplaying.Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithEngine sets the output engine
func WithEngine(engine Engine) Option {
	return func(s *Session) {
		s.engine = engine
	}
}

// WithBackend builds the session's engine on a shared backend. The caller
// keeps ownership of it. Ignored when WithEngine is given.
func WithBackend(backend output.Backend) Option {
	return func(s *Session) {
		s.backend = backend
	}
}

// WithDialer sets the websocket dialer
func WithDialer(dialer *websocket.Dialer) Option {
	return func(s *Session) {
		if dialer != nil {
			s.dialer = dialer
		}
	}
}

// WithStartBuffer overrides the warm-up delay taken from the config
func WithStartBuffer(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.startBuffer = d
		}
	}
}

// WithSyncInterval sets how often client/time is sent
func WithSyncInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.syncInterval = d
		}
	}
}

// WithTimeouts sets the auth reply timeout and the per-attempt server/hello timeout
func WithTimeouts(auth, hello time.Duration) Option {
	return func(s *Session) {
		if auth > 0 {
			s.authTimeout = auth
		}
		if hello > 0 {
			s.helloTimeout = hello
		}
	}
}

// frame is one read result forwarded by the read pump
type frame struct {
	kind int
	data []byte
	err  error
}

// errTimeout and errShutdown end a wait without a frame
var (
	errTimeout  = errors.New("timed out waiting for server")
	errShutdown = errors.New("shutdown requested")
)

// Session owns one websocket connection. Run is called once.
type Session struct {
	cfg          config.Config
	log          *zap.Logger
	sink         nowplaying.Sink
	engine       Engine
	backend      output.Backend
	dialer       *websocket.Dialer
	startBuffer  time.Duration
	syncInterval time.Duration
	authTimeout  time.Duration
	helloTimeout time.Duration

	clock     *internalsync.ClockSync
	scheduler *scheduler.Scheduler
	commands  chan Command
	dropped   atomic.Int64

	mu     sync.RWMutex
	status Status

	// Owned by the Run goroutine
	conn     *websocket.Conn
	frames   <-chan frame
	pending  []frame
	format   audio.Format
	decoder  *decode.PCMDecoder
	timeline *scheduler.Timeline
	started  bool
	track    trackInfo
}

// New creates a session for cfg. Missing optional config fields are defaulted.
func New(cfg config.Config, opts ...Option) *Session {
	cfg.ApplyDefaults()

	s := &Session{
		cfg:          cfg,
		log:          zap.NewNop(),
		sink:         nowplaying.Discard,
		dialer:       websocket.DefaultDialer,
		startBuffer:  cfg.StartBuffer(),
		syncInterval: defaultSyncInterval,
		authTimeout:  defaultAuthTimeout,
		helloTimeout: defaultHelloTimeout,
		scheduler:    scheduler.New(),
		commands:     make(chan Command, commandQueueSize),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With(zap.String("player_id", cfg.PlayerID))
	s.clock = internalsync.NewClockSync(s.log)
	s.timeline = scheduler.NewTimeline(s.startBuffer)
	return s
}

// openEngine builds the output engine when none was injected. The returned
// func stops it and releases a backend the session opened itself.
func (s *Session) openEngine() func() {
	if s.engine != nil {
		return func() {}
	}

	backend, release := s.backend, func() {}
	if backend == nil {
		backend, release = NewBackend(s.cfg, s.log)
	}

	engine := output.NewEngine(backend,
		output.WithLogger(s.log),
		output.WithSyncDelay(s.cfg.SyncDelay()),
		output.WithDevice(s.cfg.DeviceID))
	s.engine = engine

	return func() {
		engine.Stop()
		release()
	}
}

// PlayerID returns the identity announced to the server
func (s *Session) PlayerID() string {
	return s.cfg.PlayerID
}

// Status returns the current connection status
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats returns clock and scheduling statistics
func (s *Session) Stats() Stats {
	return Stats{
		Clock:     s.clock.Stats(),
		Scheduler: s.scheduler.Stats(),
		Dropped:   s.dropped.Load(),
	}
}

// Send queues a command for the server without blocking
func (s *Session) Send(cmd Command) error {
	if !cmd.valid() {
		return fmt.Errorf("%w: invalid command %q", ErrCommandRejected, cmd)
	}
	if st := s.Status(); !st.Connected() {
		return fmt.Errorf("%w (%s)", ErrNotConnected, st)
	}

	select {
	case s.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Session) setStatus(state State, reason string) {
	s.mu.Lock()
	s.status = Status{State: state, Reason: reason}
	s.mu.Unlock()

	s.log.Info("connection status", zap.Stringer("status", Status{State: state, Reason: reason}))
}

// Run connects and serves the session until ctx is cancelled or the
// transport closes. Connection failures return an error wrapping
// ErrConnectionFailed and leave the status at Error.
func (s *Session) Run(ctx context.Context) error {
	release := s.openEngine()
	defer release()

	s.setStatus(StateConnecting, "")

	s.log.Info("connecting", zap.String("url", s.cfg.ServerURL))
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.ServerURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			s.setStatus(StateDisconnected, "")
			return nil
		}
		s.setStatus(StateError, "connection failed")
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	done := make(chan struct{})
	frames := make(chan frame, frameBacklog)
	go readPump(conn, frames, done)

	s.conn = conn
	s.frames = frames
	defer func() {
		close(done)
		conn.Close()
	}()

	if err := s.handshake(ctx); err != nil {
		if errors.Is(err, errShutdown) {
			s.setStatus(StateDisconnected, "")
			return nil
		}
		s.log.Error("handshake failed", zap.Error(err))
		return err
	}

	s.setStatus(StateConnected, "")
	s.engine.Start(s.scheduler)

	return s.serve(ctx)
}

// readPump forwards frames until a read fails. Reads never carry a deadline,
// so a slow server cannot leave the connection in a failed state.
func readPump(conn *websocket.Conn, out chan<- frame, done <-chan struct{}) {
	for {
		kind, data, err := conn.ReadMessage()
		select {
		case out <- frame{kind: kind, data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// waitFrame returns the next inbound frame, errTimeout, errShutdown, or the transport error
func (s *Session) waitFrame(ctx context.Context, timeout time.Duration) (frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return frame{}, errShutdown
	case <-timer.C:
		return frame{}, errTimeout
	case f := <-s.frames:
		if f.err != nil {
			return frame{}, f.err
		}
		return f, nil
	}
}

func (s *Session) handshake(ctx context.Context) error {
	auth := protocol.Auth{
		Type:     protocol.TypeAuth,
		Token:    s.cfg.AuthToken,
		ClientID: s.cfg.PlayerID,
	}
	if err := s.writeJSON(auth); err != nil {
		s.setStatus(StateError, "authentication failed")
		return fmt.Errorf("%w: failed to send auth: %v", ErrConnectionFailed, err)
	}

	if _, err := s.waitFrame(ctx, s.authTimeout); err != nil {
		if errors.Is(err, errShutdown) {
			return err
		}
		s.setStatus(StateError, "authentication failed")
		return fmt.Errorf("%w: waiting for auth reply: %v", ErrConnectionFailed, err)
	}

	if err := s.writeJSON(protocol.Message{Type: protocol.TypeClientHello, Payload: s.hello()}); err != nil {
		s.setStatus(StateError, "handshake failed")
		return fmt.Errorf("%w: failed to send client/hello: %v", ErrConnectionFailed, err)
	}

	for attempt := 1; attempt <= helloAttempts; attempt++ {
		f, err := s.waitFrame(ctx, s.helloTimeout)
		if errors.Is(err, errTimeout) {
			continue
		}
		if err != nil {
			if errors.Is(err, errShutdown) {
				return err
			}
			s.setStatus(StateError, "handshake failed")
			return fmt.Errorf("%w: waiting for server/hello: %v", ErrConnectionFailed, err)
		}

		if hello, ok := parseServerHello(f); ok {
			s.log.Info("handshake complete",
				zap.String("server_id", hello.ServerID),
				zap.String("server_name", hello.Name),
				zap.Strings("active_roles", hello.ActiveRoles))
			return nil
		}

		// Handled once the loop starts so an early stream/start is not lost
		s.pending = append(s.pending, f)
	}

	s.log.Warn("no server/hello received, continuing as connected",
		zap.Int("attempts", helloAttempts),
		zap.Duration("timeout", s.helloTimeout))
	return nil
}

func parseServerHello(f frame) (protocol.ServerHello, bool) {
	if f.kind != websocket.TextMessage {
		return protocol.ServerHello{}, false
	}
	env, err := protocol.ParseEnvelope(f.data)
	if err != nil || env.Type != protocol.TypeServerHello {
		return protocol.ServerHello{}, false
	}

	var hello protocol.ServerHello
	if len(env.Payload) > 0 {
		// A hello with an odd payload still completes the handshake
		_ = env.Decode(&hello)
	}
	return hello, true
}

func (s *Session) hello() protocol.ClientHello {
	return protocol.ClientHello{
		ClientID: s.cfg.PlayerID,
		Name:     s.cfg.PlayerName,
		Version:  protocolVersion,
		SupportedRoles: []string{
			protocol.RolePlayer,
			protocol.RoleController,
			protocol.RoleMetadata,
		},
		DeviceInfo: &protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		PlayerV1Support: &protocol.PlayerV1Support{
			SupportedFormats: []protocol.AudioFormat{
				{Codec: audio.CodecPCM, Channels: 2, SampleRate: 44100, BitDepth: 16},
				{Codec: audio.CodecPCM, Channels: 2, SampleRate: 48000, BitDepth: 24},
				{Codec: audio.CodecPCM, Channels: 2, SampleRate: 96000, BitDepth: 24},
			},
			BufferCapacity:    bufferCapacity,
			SupportedCommands: []string{"volume", "mute"},
		},
	}
}

// serve runs the steady-state loop. Only this goroutine writes to the connection.
func (s *Session) serve(ctx context.Context) error {
	if err := s.sendState(); err != nil {
		s.log.Warn("failed to send initial state", zap.Error(err))
	}
	s.sendTime()

	for _, f := range s.pending {
		s.handleFrame(f)
	}
	s.pending = nil

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.sendGoodbye("shutdown")
			s.shutdown()
			return nil

		case <-ticker.C:
			s.sendTime()

		case cmd := <-s.commands:
			if err := s.writeJSON(cmd.message()); err != nil {
				s.log.Warn("failed to send command", zap.Stringer("command", cmd), zap.Error(err))
				continue
			}
			s.log.Debug("command sent", zap.Stringer("command", cmd))

		case f := <-s.frames:
			if f.err != nil {
				if websocket.IsCloseError(f.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Info("server closed connection")
				} else {
					s.log.Warn("connection lost", zap.Error(f.err))
				}
				s.shutdown()
				return nil
			}
			s.handleFrame(f)
		}
	}
}

// shutdown stops playback and reports the session as gone
func (s *Session) shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		s.log.Debug("close frame not sent", zap.Error(err))
	}

	s.engine.Stop()
	if n := s.scheduler.Clear(); n > 0 {
		s.log.Debug("discarded scheduled audio", zap.Int("chunks", n))
	}

	s.setStatus(StateDisconnected, "")
	s.sink.Update(nowplaying.Snapshot{})
}

func (s *Session) writeJSON(v interface{}) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *Session) sendTime() {
	msg := protocol.Message{
		Type:    protocol.TypeClientTime,
		Payload: protocol.ClientTime{ClientTransmitted: internalsync.NowMicros()},
	}
	if err := s.writeJSON(msg); err != nil {
		s.log.Warn("failed to send client/time", zap.Error(err))
	}
}

func (s *Session) sendState() error {
	return s.writeJSON(protocol.Message{
		Type: protocol.TypeClientState,
		Payload: protocol.ClientState{
			Player: &protocol.PlayerState{
				State:  "synchronized",
				Volume: s.engine.Volume(),
				Muted:  s.engine.Muted(),
			},
		},
	})
}

func (s *Session) sendGoodbye(reason string) {
	msg := protocol.Message{
		Type:    protocol.TypeClientGoodbye,
		Payload: protocol.ClientGoodbye{Reason: reason},
	}
	if err := s.writeJSON(msg); err != nil {
		s.log.Debug("goodbye not sent", zap.Error(err))
	}
}
