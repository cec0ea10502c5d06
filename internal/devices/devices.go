// ABOUTME: Output device enumeration through miniaudio
// ABOUTME: Lists playback devices with their rates and channel limits and resolves ids
package devices

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// ErrDeviceNotFound is returned when no playback device has the requested id
var ErrDeviceNotFound = errors.New("output device not found")

// Rates and channels assumed when a device reports no native formats
var (
	fallbackRates    = []int{44100, 48000}
	fallbackChannels = 2
)

// Device describes a playback device
type Device struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsDefault   bool   `json:"is_default"`
	SampleRates []int  `json:"sample_rates"`
	MaxChannels int    `json:"max_channels"`
}

// nativeFormat is one format a device reports, 0 meaning any
type nativeFormat struct {
	SampleRate int
	Channels   int
}

// Enumerator lists playback devices
type Enumerator struct {
	mu       sync.Mutex
	log      *zap.Logger
	malgoCtx *malgo.AllocatedContext
}

// NewEnumerator opens a miniaudio context for device queries
func NewEnumerator(logger *zap.Logger) (*Enumerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	return &Enumerator{log: logger, malgoCtx: ctx}, nil
}

// List returns playback devices, default first then by name
func (e *Enumerator) List() ([]Device, error) {
	infos, err := e.infos()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(infos))
	for i := range infos {
		info := &infos[i]

		formats := make([]nativeFormat, 0, info.FormatCount)
		for j := 0; j < int(info.FormatCount) && j < len(info.Formats); j++ {
			formats = append(formats, nativeFormat{
				SampleRate: int(info.Formats[j].SampleRate),
				Channels:   int(info.Formats[j].Channels),
			})
		}

		devices = append(devices, newDevice(deviceKey(info.ID), info.Name(), info.IsDefault != 0, formats))
	}

	sortDevices(devices)
	return devices, nil
}

// Lookup returns the device with the given id
func (e *Enumerator) Lookup(id string) (Device, error) {
	devices, err := e.List()
	if err != nil {
		return Device{}, err
	}

	if d, ok := Find(devices, id); ok {
		return d, nil
	}
	return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// MalgoID resolves a device id to the miniaudio id used to open it
func (e *Enumerator) MalgoID(id string) (malgo.DeviceID, error) {
	infos, err := e.infos()
	if err != nil {
		return malgo.DeviceID{}, err
	}

	for i := range infos {
		if deviceKey(infos[i].ID) == id {
			return infos[i].ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Close releases the miniaudio context
func (e *Enumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.malgoCtx == nil {
		return nil
	}
	if err := e.malgoCtx.Uninit(); err != nil {
		e.log.Warn("malgo context uninit error", zap.Error(err))
	}
	e.malgoCtx.Free()
	e.malgoCtx = nil
	return nil
}

// infos queries playback devices with their full format lists
func (e *Enumerator) infos() ([]malgo.DeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.malgoCtx == nil {
		return nil, errors.New("device enumerator closed")
	}

	infos, err := e.malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	for i := range infos {
		full, err := e.malgoCtx.DeviceInfo(malgo.Playback, infos[i].ID, malgo.Shared)
		if err != nil {
			e.log.Debug("device info unavailable", zap.String("device", infos[i].Name()), zap.Error(err))
			continue
		}
		infos[i] = full
	}

	return infos, nil
}

// Find returns the device with the given id from a list
func Find(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

func deviceKey(id malgo.DeviceID) string {
	return hex.EncodeToString(id[:])
}

// newDevice collects distinct sample rates and the widest channel count
func newDevice(id, name string, isDefault bool, formats []nativeFormat) Device {
	seen := make(map[int]bool)
	var rates []int
	maxChannels := 0

	for _, f := range formats {
		if f.SampleRate > 0 && !seen[f.SampleRate] {
			seen[f.SampleRate] = true
			rates = append(rates, f.SampleRate)
		}
		if f.Channels > maxChannels {
			maxChannels = f.Channels
		}
	}

	if len(rates) == 0 {
		rates = append([]int(nil), fallbackRates...)
	}
	if maxChannels == 0 {
		maxChannels = fallbackChannels
	}
	sort.Ints(rates)

	return Device{
		ID:          id,
		Name:        strings.TrimSpace(name),
		IsDefault:   isDefault,
		SampleRates: rates,
		MaxChannels: maxChannels,
	}
}

func sortDevices(devices []Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].IsDefault != devices[j].IsDefault {
			return devices[i].IsDefault
		}
		return strings.ToLower(devices[i].Name) < strings.ToLower(devices[j].Name)
	})
}
