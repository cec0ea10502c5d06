// ABOUTME: Sendspin Protocol message type definitions
// ABOUTME: Defines the JSON envelope and the payloads a player/controller client exchanges
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types used by the client
const (
	TypeAuth          = "auth"
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeClientState   = "client/state"
	TypeClientTime    = "client/time"
	TypeServerTime    = "server/time"
	TypeClientCommand = "client/command"
	TypeServerCommand = "server/command"
	TypeServerState   = "server/state"
	TypeGroupUpdate   = "group/update"
	TypeStreamStart   = "stream/start"
	TypeStreamClear   = "stream/clear"
	TypeStreamEnd     = "stream/end"
	TypeClientGoodbye = "client/goodbye"
)

// Roles advertised in client/hello
const (
	RolePlayer     = "player@v1"
	RoleController = "controller@v1"
	RoleMetadata   = "metadata@v1"
)

// Message is the top-level wrapper for outbound protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is an inbound message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEnvelope decodes the message wrapper of a text frame
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("message has no type")
	}
	return env, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: failed to parse payload: %w", e.Type, err)
	}
	return nil
}

// Auth is sent before client/hello when the server sits behind an authenticating proxy.
// It is not wrapped in a payload.
type Auth struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID        string           `json:"client_id"`
	Name            string           `json:"name"`
	Version         int              `json:"version"`
	SupportedRoles  []string         `json:"supported_roles"`
	DeviceInfo      *DeviceInfo      `json:"device_info,omitempty"`
	PlayerV1Support *PlayerV1Support `json:"player@v1_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerV1Support describes player@v1 capabilities
type PlayerV1Support struct {
	SupportedFormats  []AudioFormat `json:"supported_formats"`
	BufferCapacity    int           `json:"buffer_capacity"`
	SupportedCommands []string      `json:"supported_commands"`
}

// AudioFormat describes a supported audio format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID    string   `json:"server_id"`
	Name        string   `json:"name"`
	Version     int      `json:"version"`
	ActiveRoles []string `json:"active_roles"`
}

// ClientState is sent as client/state with role-specific objects
type ClientState struct {
	Player *PlayerState `json:"player,omitempty"`
}

// PlayerState reports the player's current state
type PlayerState struct {
	State  string `json:"state"` // "synchronized" or "error"
	Volume int    `json:"volume"`
	Muted  bool   `json:"muted"`
}

// ServerCommand is sent as server/command with role-specific objects
type ServerCommand struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// PlayerCommand is a control command for the local player
type PlayerCommand struct {
	Command string `json:"command"` // "volume" or "mute"
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// ClientCommand is sent as client/command with role-specific objects
type ClientCommand struct {
	Controller *ControllerCommand `json:"controller,omitempty"`
}

// ControllerCommand asks the server to act on the whole group
type ControllerCommand struct {
	Command string `json:"command"`
	Volume  *int   `json:"volume,omitempty"`
	Mute    *bool  `json:"mute,omitempty"`
}

// StreamStartPlayer contains the audio format details
type StreamStartPlayer struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// StreamStart notifies the client of stream format
type StreamStart struct {
	Player *StreamStartPlayer `json:"player,omitempty"`
}

// ServerState is sent as server/state with role-specific objects
type ServerState struct {
	Metadata   *MetadataState   `json:"metadata,omitempty"`
	Controller *ControllerState `json:"controller,omitempty"`
}

// MetadataState contains track metadata for the metadata role
type MetadataState struct {
	Timestamp  int64          `json:"timestamp"`
	Title      *string        `json:"title,omitempty"`
	Artist     *string        `json:"artist,omitempty"`
	Album      *string        `json:"album,omitempty"`
	ArtworkURL *string        `json:"artwork_url,omitempty"`
	Progress   *ProgressState `json:"progress,omitempty"`
}

// ProgressState contains playback progress info
type ProgressState struct {
	TrackProgress int64 `json:"track_progress"` // Current position in ms
	TrackDuration int64 `json:"track_duration"` // Total duration in ms (0 = unknown)
	PlaybackSpeed int   `json:"playback_speed"` // Speed * 1000 (1000 = normal, 0 = paused)
}

// ControllerState contains group controller state
type ControllerState struct {
	SupportedCommands []string `json:"supported_commands"`
	Volume            int      `json:"volume"`
	Muted             bool     `json:"muted"`
}

// GroupUpdate is sent as group/update
type GroupUpdate struct {
	PlaybackState *string `json:"playback_state,omitempty"` // "playing", "paused", "stopped"
	GroupID       *string `json:"group_id,omitempty"`
	GroupName     *string `json:"group_name,omitempty"`
}

// StreamClear instructs clients to clear buffers (for seek)
type StreamClear struct {
	Roles []string `json:"roles,omitempty"`
}

// StreamEnd ends streams for specified roles
type StreamEnd struct {
	Roles []string `json:"roles,omitempty"`
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "another_server", "shutdown", "restart", "user_request"
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client timestamp in microseconds
}

// ServerTime is the response to client/time
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`    // Server receive timestamp
	ServerTransmitted int64 `json:"server_transmitted"` // Server send timestamp
}

// IncludesRole reports whether a role list names role, treating an empty list as all roles
func IncludesRole(roles []string, role string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
