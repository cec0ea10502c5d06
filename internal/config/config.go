// ABOUTME: Player configuration with defaults, environment loading and validation
// ABOUTME: Reads SENDSPIN_* variables, optionally from a .env file
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Backends accepted for audio output
const (
	BackendMalgo = "malgo"
	BackendOto   = "oto"
)

const (
	defaultStartBufferMs = 500
	defaultPlayerName    = "Sendspin Player"
	maxSyncDelayMs       = 5000
)

// Environment variable names
const (
	EnvServerURL     = "SENDSPIN_SERVER_URL"
	EnvPlayerID      = "SENDSPIN_PLAYER_ID"
	EnvPlayerName    = "SENDSPIN_PLAYER_NAME"
	EnvDeviceID      = "SENDSPIN_DEVICE_ID"
	EnvSyncDelayMs   = "SENDSPIN_SYNC_DELAY_MS"
	EnvAuthToken     = "SENDSPIN_AUTH_TOKEN"
	EnvBackend       = "SENDSPIN_BACKEND"
	EnvStartBufferMs = "SENDSPIN_START_BUFFER_MS"
	EnvLogLevel      = "SENDSPIN_LOG_LEVEL"
	EnvLogFile       = "SENDSPIN_LOG_FILE"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Hostname suffixes dropped from the default player name
var hostSuffixes = []string{".local", ".lan", ".home", ".localdomain"}

// Config is supplied once when a session starts
type Config struct {
	PlayerID      string
	PlayerName    string
	ServerURL     string
	DeviceID      string
	SyncDelayMs   int
	AuthToken     string
	Backend       string
	StartBufferMs int
	LogLevel      string
	LogFile       string
}

// Default returns a config with every optional field filled in
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// Load reads a .env file from the working directory if present, then
// overlays SENDSPIN_* environment variables on the defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a config from a variable lookup function
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	var c Config

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
		}
		*dst = n
		return nil
	}

	str(EnvServerURL, &c.ServerURL)
	str(EnvPlayerID, &c.PlayerID)
	str(EnvPlayerName, &c.PlayerName)
	str(EnvDeviceID, &c.DeviceID)
	str(EnvAuthToken, &c.AuthToken)
	str(EnvBackend, &c.Backend)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFile, &c.LogFile)

	if err := num(EnvSyncDelayMs, &c.SyncDelayMs); err != nil {
		return Config{}, err
	}
	if err := num(EnvStartBufferMs, &c.StartBufferMs); err != nil {
		return Config{}, err
	}

	c.ApplyDefaults()
	return c, nil
}

// ApplyDefaults fills empty optional fields
func (c *Config) ApplyDefaults() {
	if c.PlayerID == "" {
		c.PlayerID = uuid.New().String()
	}
	if c.PlayerName == "" {
		c.PlayerName = DefaultPlayerName()
	}
	if c.Backend == "" {
		c.Backend = BackendMalgo
	}
	if c.StartBufferMs <= 0 {
		c.StartBufferMs = defaultStartBufferMs
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the fields a session depends on
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("%w: server url is required", ErrInvalid)
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: server url: %v", ErrInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: server url scheme must be ws or wss, got %q", ErrInvalid, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: server url has no host", ErrInvalid)
	}

	if c.PlayerID == "" {
		return fmt.Errorf("%w: player id is required", ErrInvalid)
	}

	switch c.Backend {
	case BackendMalgo, BackendOto:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}

	if c.SyncDelayMs > maxSyncDelayMs || c.SyncDelayMs < -maxSyncDelayMs {
		return fmt.Errorf("%w: sync delay %dms outside ±%dms", ErrInvalid, c.SyncDelayMs, maxSyncDelayMs)
	}

	return nil
}

// SyncDelay returns the manual sync adjustment
func (c Config) SyncDelay() time.Duration {
	return time.Duration(c.SyncDelayMs) * time.Millisecond
}

// StartBuffer returns the warm-up delay before the first chunk plays
func (c Config) StartBuffer() time.Duration {
	return time.Duration(c.StartBufferMs) * time.Millisecond
}

// DefaultPlayerName derives a display name from the hostname
func DefaultPlayerName() string {
	host, err := os.Hostname()
	if err != nil {
		return defaultPlayerName
	}
	if name := cleanHostname(host); name != "" {
		return name
	}
	return defaultPlayerName
}

func cleanHostname(host string) string {
	host = strings.TrimSpace(host)
	lower := strings.ToLower(host)
	for _, suffix := range hostSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return host[:len(host)-len(suffix)]
		}
	}
	return host
}

// ServerURLFromHost builds a websocket url for a discovered server
func ServerURLFromHost(host string, port int, path string) string {
	if path == "" {
		path = "/sendspin"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: path}
	return u.String()
}
