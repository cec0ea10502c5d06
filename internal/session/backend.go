// ABOUTME: Audio backend selection for sessions
// ABOUTME: Builds malgo with device lookup or oto, with a release func for what was opened
package session

import (
	"github.com/Sendspin/sendspin-companion/internal/config"
	"github.com/Sendspin/sendspin-companion/internal/devices"
	"github.com/Sendspin/sendspin-companion/pkg/audio/output"
	"go.uber.org/zap"
)

// deviceResolver resolves output device ids and holds its own audio context
type deviceResolver interface {
	output.DeviceResolver
	Close() error
}

// openResolver opens the device lookup used by the malgo backend
var openResolver = func(logger *zap.Logger) (deviceResolver, error) {
	enum, err := devices.NewEnumerator(logger)
	if err != nil {
		return nil, err
	}
	return enum, nil
}

// NewBackend builds the configured output backend. The returned func closes
// the backend and its device lookup and must be called once the last
// engine using it has stopped.
func NewBackend(cfg config.Config, logger *zap.Logger) (output.Backend, func()) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Backend == config.BackendOto {
		if cfg.DeviceID != "" {
			logger.Warn("oto backend always uses the default output device",
				zap.String("device", cfg.DeviceID))
		}
		return output.NewOto(logger), func() {}
	}

	resolver, err := openResolver(logger)
	if err != nil {
		logger.Warn("device lookup unavailable, using default output device",
			zap.String("device", cfg.DeviceID),
			zap.Error(err))
		backend := output.NewMalgo(logger, nil)
		return backend, func() { _ = backend.Close() }
	}

	if cfg.DeviceID != "" {
		if _, err := resolver.MalgoID(cfg.DeviceID); err != nil {
			logger.Warn("configured device not available, using default",
				zap.String("device", cfg.DeviceID),
				zap.Error(err))
		}
	}

	backend := output.NewMalgo(logger, resolver)
	return backend, func() {
		_ = backend.Close()
		if err := resolver.Close(); err != nil {
			logger.Warn("device lookup close error", zap.Error(err))
		}
	}
}
