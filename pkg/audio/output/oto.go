// ABOUTME: Oto-based output backend
// ABOUTME: The oto player pulls float32 frames through an io.Reader backed by the engine queue
package output

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Oto opens streams through the oto library
type Oto struct {
	mu         sync.Mutex
	log        *zap.Logger
	otoCtx     *oto.Context
	sampleRate int
	channels   int
}

// NewOto creates an oto backend
func NewOto(logger *zap.Logger) *Oto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oto{log: logger}
}

// Name identifies the backend in logs
func (o *Oto) Name() string {
	return "oto"
}

// Open creates a player on the shared oto context
func (o *Oto) Open(cfg StreamConfig, fill FillFunc) (Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cfg.DeviceID != "" {
		o.log.Warn("oto cannot select devices, using default", zap.String("device", cfg.DeviceID))
	}

	// oto only allows one context per process, so a later format change keeps the first one
	if o.otoCtx != nil && (o.sampleRate != cfg.SampleRate || o.channels != cfg.Channels) {
		o.log.Warn("format change but oto cannot reinitialize, continuing with existing context",
			zap.Int("sample_rate", o.sampleRate),
			zap.Int("channels", o.channels),
			zap.Int("requested_sample_rate", cfg.SampleRate),
			zap.Int("requested_channels", cfg.Channels))
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatFloat32LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = cfg.SampleRate
		o.channels = cfg.Channels
	}

	player := o.otoCtx.NewPlayer(fillReader(fill))
	player.Play()

	return &otoStream{player: player}, nil
}

// fillReader adapts the device callback to the reader oto pulls from
type fillReader FillFunc

func (f fillReader) Read(p []byte) (int, error) {
	// oto may ask for a partial frame; only whole float32 samples are filled
	n := len(p) - len(p)%bytesPerFloat
	f(p[:n])
	return n, nil
}

type otoStream struct {
	player *oto.Player
}

// Close stops the player
func (s *otoStream) Close() error {
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}
