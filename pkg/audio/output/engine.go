// ABOUTME: Drain engine feeding the device callback from the scheduler
// ABOUTME: Rebuilds the device stream on format change and plays silence on underrun
package output

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/sendspin-companion/pkg/audio"
	"github.com/drgolem/ringbuffer"
	"go.uber.org/zap"
)

const (
	defaultPollInterval  = time.Millisecond
	defaultQueueDuration = 2 * time.Second
	defaultWriteTimeout  = 2 * time.Second
)

// Source yields chunks whose play time has arrived
type Source interface {
	NextReady(now time.Time) (audio.Chunk, bool)
}

// Stats is a point-in-time view of the engine
type Stats struct {
	Played    int64 // Chunks pushed to the device queue
	Dropped   int64 // Chunks discarded because no device was available or the queue stayed full
	Underruns int64 // Callbacks that had to pad with silence
	Rebuilds  int64 // Device streams opened
	Format    audio.Format
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithSyncDelay delays the first enqueue of each device stream. Negative
// values are accepted and ignored.
func WithSyncDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.syncDelay = d
	}
}

// WithPollInterval sets how often the drain loop polls the source
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithDevice selects an output device by id
func WithDevice(id string) Option {
	return func(e *Engine) {
		e.deviceID = id
	}
}

// WithQueueDuration sets how much audio the device queue can hold
func WithQueueDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.queueDuration = d
		}
	}
}

// Engine drains a Source into a device stream. The drain goroutine is the
// only writer of the device queue and the stream callback its only reader.
type Engine struct {
	backend       Backend
	log           *zap.Logger
	deviceID      string
	syncDelay     time.Duration
	pollInterval  time.Duration
	queueDuration time.Duration
	writeTimeout  time.Duration

	volume atomic.Int32
	muted  atomic.Bool

	played    atomic.Int64
	dropped   atomic.Int64
	underruns atomic.Int64
	rebuilds  atomic.Int64
	current   atomic.Pointer[audio.Format]

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	// Owned by the drain goroutine
	stream       Stream
	format       audio.Format
	failed       audio.Format
	queue        *ringbuffer.RingBuffer
	delayPending bool
	scratch      []byte
}

// NewEngine creates an engine that opens streams through backend
func NewEngine(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:       backend,
		log:           zap.NewNop(),
		pollInterval:  defaultPollInterval,
		queueDuration: defaultQueueDuration,
		writeTimeout:  defaultWriteTimeout,
	}
	e.volume.Store(100)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start launches the drain goroutine. Starting a running engine is a no-op.
func (e *Engine) Start(src Source) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stop != nil {
		return
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(src, e.stop, e.done)

	e.log.Info("output engine started",
		zap.String("backend", e.backend.Name()),
		zap.String("device", e.deviceID),
		zap.Duration("sync_delay", e.syncDelay))
}

// Stop halts the drain goroutine and closes the device stream
func (e *Engine) Stop() {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	<-done

	e.log.Info("output engine stopped",
		zap.Int64("played", e.played.Load()),
		zap.Int64("underruns", e.underruns.Load()))
}

// SetVolume sets the software volume (0-100)
func (e *Engine) SetVolume(volume int) {
	e.volume.Store(int32(clampVolume(volume)))
}

// SetMuted sets mute state
func (e *Engine) SetMuted(muted bool) {
	e.muted.Store(muted)
}

// Volume returns current volume
func (e *Engine) Volume() int {
	return int(e.volume.Load())
}

// Muted returns mute state
func (e *Engine) Muted() bool {
	return e.muted.Load()
}

// Stats returns engine statistics
func (e *Engine) Stats() Stats {
	stats := Stats{
		Played:    e.played.Load(),
		Dropped:   e.dropped.Load(),
		Underruns: e.underruns.Load(),
		Rebuilds:  e.rebuilds.Load(),
	}
	if f := e.current.Load(); f != nil {
		stats.Format = *f
	}
	return stats
}

func (e *Engine) run(src Source, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer e.closeStream()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		for {
			chunk, ok := src.NextReady(time.Now())
			if !ok {
				break
			}
			if !e.play(chunk, stop) {
				return
			}
		}
	}
}

// play enqueues one chunk. It returns false when stop fired while waiting.
func (e *Engine) play(chunk audio.Chunk, stop <-chan struct{}) bool {
	if e.stream == nil || chunk.Format != e.format {
		if chunk.Format == e.failed {
			e.dropped.Add(1)
			return true
		}
		if err := e.rebuild(chunk.Format); err != nil {
			e.log.Error("output stream unavailable, dropping audio",
				zap.Stringer("format", chunk.Format),
				zap.Error(err))
			e.failed = chunk.Format
			e.dropped.Add(1)
			return true
		}
	}

	if e.delayPending {
		e.delayPending = false
		if !sleep(e.syncDelay, stop) {
			return false
		}
	}

	gain := getVolumeMultiplier(e.Volume(), e.Muted())
	e.scratch = appendFloat32LE(e.scratch, chunk.Samples, gain)

	if uint64(len(e.scratch)) > e.queue.Size() {
		e.log.Warn("chunk larger than device queue, dropping", zap.Int("bytes", len(e.scratch)))
		e.dropped.Add(1)
		return true
	}

	deadline := time.Now().Add(e.writeTimeout)
	for {
		_, err := e.queue.Write(e.scratch)
		if err == nil {
			e.played.Add(1)
			return true
		}
		if !errors.Is(err, ringbuffer.ErrInsufficientSpace) {
			e.log.Error("device queue write failed", zap.Error(err))
			e.dropped.Add(1)
			return true
		}
		if time.Now().After(deadline) {
			e.log.Warn("device queue stayed full, dropping chunk", zap.Duration("waited", e.writeTimeout))
			e.dropped.Add(1)
			return true
		}
		if !sleep(e.pollInterval, stop) {
			return false
		}
	}
}

// rebuild replaces the device stream for a new format
func (e *Engine) rebuild(format audio.Format) error {
	if e.stream != nil {
		e.log.Info("format change, rebuilding output stream",
			zap.Stringer("from", e.format),
			zap.Stringer("to", format))
	}
	e.closeStream()

	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("%w: invalid format %s", ErrDeviceFailure, format)
	}

	frameBytes := uint64(format.Channels * bytesPerFloat)
	frames := uint64(e.queueDuration.Seconds() * float64(format.SampleRate))
	queue := ringbuffer.New(frames * frameBytes)

	cfg := StreamConfig{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		DeviceID:   e.deviceID,
	}

	stream, err := e.backend.Open(cfg, e.filler(queue))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceFailure, err)
	}

	e.stream = stream
	e.queue = queue
	e.format = format
	e.failed = audio.Format{}
	e.delayPending = e.syncDelay > 0
	e.rebuilds.Add(1)
	e.current.Store(&format)

	e.log.Info("output stream opened",
		zap.String("backend", e.backend.Name()),
		zap.Stringer("format", format),
		zap.Uint64("queue_bytes", queue.Size()))

	return nil
}

func (e *Engine) closeStream() {
	if e.stream == nil {
		return
	}
	if err := e.stream.Close(); err != nil {
		e.log.Warn("output stream close error", zap.Error(err))
	}
	e.stream = nil
	e.queue = nil
	e.format = audio.Format{}
	e.current.Store(nil)
}

// filler returns the device callback for one stream's queue. It never
// blocks or allocates and pads with silence when the queue runs dry.
func (e *Engine) filler(queue *ringbuffer.RingBuffer) FillFunc {
	return func(out []byte) {
		n, _ := queue.Read(out)
		if n < len(out) {
			clear(out[n:])
			e.underruns.Add(1)
		}
	}
}

// sleep waits for d or until stop fires, reporting whether it slept fully
func sleep(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
