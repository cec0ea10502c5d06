// ABOUTME: Audio output backend interfaces
// ABOUTME: Backends open callback-driven streams that pull float32 frames
package output

import "errors"

// ErrDeviceFailure wraps failures to open or start an output device
var ErrDeviceFailure = errors.New("audio device failure")

// StreamConfig describes the device stream a backend should open
type StreamConfig struct {
	SampleRate int
	Channels   int
	DeviceID   string // Empty selects the system default
}

// FillFunc is called from the device's real-time thread. It must fill out
// completely with interleaved little-endian float32 samples.
type FillFunc func(out []byte)

// Stream is an open device stream
type Stream interface {
	Close() error
}

// Backend opens device streams
type Backend interface {
	Name() string
	Open(cfg StreamConfig, fill FillFunc) (Stream, error)
}
