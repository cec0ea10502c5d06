// ABOUTME: Malgo-based output backend
// ABOUTME: Opens float32 miniaudio playback devices that pull from the engine queue
package output

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// DeviceResolver maps a configured device id to a miniaudio device
type DeviceResolver interface {
	MalgoID(id string) (malgo.DeviceID, error)
}

// Malgo opens streams through miniaudio
type Malgo struct {
	mu       sync.Mutex
	log      *zap.Logger
	resolver DeviceResolver
	malgoCtx *malgo.AllocatedContext
}

// NewMalgo creates a malgo backend. resolver may be nil, in which case the
// system default device is always used.
func NewMalgo(logger *zap.Logger, resolver DeviceResolver) *Malgo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Malgo{
		log:      logger,
		resolver: resolver,
	}
}

// Name identifies the backend in logs
func (m *Malgo) Name() string {
	return "malgo"
}

// Open initializes and starts a playback device
func (m *Malgo) Open(cfg StreamConfig, fill FillFunc) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var deviceID malgo.DeviceID
	if cfg.DeviceID != "" && m.resolver != nil {
		id, err := m.resolver.MalgoID(cfg.DeviceID)
		if err != nil {
			m.log.Warn("output device not found, using default",
				zap.String("device", cfg.DeviceID),
				zap.Error(err))
		} else {
			deviceID = id
			deviceConfig.Playback.DeviceID = deviceID.Pointer()
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			fill(pOutputSample)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}

	m.log.Debug("malgo device started",
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("channels", cfg.Channels))

	return &malgoStream{device: device, log: m.log}, nil
}

// Close releases the miniaudio context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		m.log.Warn("malgo context uninit error", zap.Error(err))
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return nil
}

type malgoStream struct {
	device *malgo.Device
	log    *zap.Logger
}

// Close stops and uninitializes the device
func (s *malgoStream) Close() error {
	if s.device == nil {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		s.log.Warn("device stop error", zap.Error(err))
	}
	s.device.Uninit()
	s.device = nil
	return nil
}
