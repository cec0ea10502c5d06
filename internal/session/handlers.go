// ABOUTME: Inbound message handling for the session loop
// ABOUTME: Format negotiation, audio chunk scheduling, clock replies, metadata and player commands
package session

import (
	"fmt"
	"time"

	"github.com/Sendspin/sendspin-companion/internal/nowplaying"
	internalsync "github.com/Sendspin/sendspin-companion/internal/sync"
	"github.com/Sendspin/sendspin-companion/pkg/audio"
	"github.com/Sendspin/sendspin-companion/pkg/audio/decode"
	"github.com/Sendspin/sendspin-companion/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// trackInfo accumulates metadata from server/state updates
type trackInfo struct {
	title      string
	artist     string
	album      string
	artworkURL string
	duration   time.Duration
	elapsed    time.Duration
}

// merge applies the fields present in an update
func (t *trackInfo) merge(m *protocol.MetadataState) {
	if m.Title != nil {
		t.title = *m.Title
	}
	if m.Artist != nil {
		t.artist = *m.Artist
	}
	if m.Album != nil {
		t.album = *m.Album
	}
	if m.ArtworkURL != nil {
		t.artworkURL = *m.ArtworkURL
	}
	if m.Progress != nil {
		t.duration = time.Duration(m.Progress.TrackDuration/1000) * time.Second
		t.elapsed = time.Duration(m.Progress.TrackProgress/1000) * time.Second
	}
}

func (s *Session) handleFrame(f frame) {
	switch f.kind {
	case websocket.BinaryMessage:
		s.handleAudio(f.data)
	case websocket.TextMessage:
		s.handleText(f.data)
	}
}

func (s *Session) handleText(data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
		return
	}

	switch env.Type {
	case protocol.TypeStreamStart:
		var msg protocol.StreamStart
		if err := env.Decode(&msg); err != nil {
			s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
			return
		}
		s.handleStreamStart(msg)

	case protocol.TypeStreamClear:
		var msg protocol.StreamClear
		_ = env.Decode(&msg)
		if protocol.IncludesRole(msg.Roles, protocol.RolePlayer) {
			s.clearStream()
		}

	case protocol.TypeStreamEnd:
		var msg protocol.StreamEnd
		_ = env.Decode(&msg)
		if protocol.IncludesRole(msg.Roles, protocol.RolePlayer) {
			s.endStream()
		}

	case protocol.TypeServerTime:
		var msg protocol.ServerTime
		if err := env.Decode(&msg); err != nil {
			s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
			return
		}
		s.handleServerTime(msg)

	case protocol.TypeServerState:
		var msg protocol.ServerState
		if err := env.Decode(&msg); err != nil {
			s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
			return
		}
		s.handleServerState(msg)

	case protocol.TypeServerCommand:
		var msg protocol.ServerCommand
		if err := env.Decode(&msg); err != nil {
			s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
			return
		}
		s.handleServerCommand(msg)

	case protocol.TypeGroupUpdate:
		var msg protocol.GroupUpdate
		if err := env.Decode(&msg); err != nil {
			s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
			return
		}
		s.log.Info("group update",
			zap.Stringp("group_id", msg.GroupID),
			zap.Stringp("group_name", msg.GroupName),
			zap.Stringp("playback_state", msg.PlaybackState))

	case protocol.TypeServerHello:
		s.log.Debug("late server/hello ignored")

	default:
		s.log.Debug("unhandled message", zap.String("type", env.Type))
	}
}

// handleStreamStart fixes the format for a new stream segment
func (s *Session) handleStreamStart(msg protocol.StreamStart) {
	if msg.Player == nil {
		s.log.Debug("stream/start without player section")
		return
	}

	format := audio.Format{
		Codec:      msg.Player.Codec,
		SampleRate: msg.Player.SampleRate,
		Channels:   msg.Player.Channels,
		BitDepth:   msg.Player.BitDepth,
	}

	s.resetSegment()

	if err := checkFormat(format); err != nil {
		s.format = audio.Format{}
		s.log.Warn("ignoring stream", zap.Stringer("format", format), zap.Error(err))
		return
	}

	s.format = format
	s.log.Info("stream started", zap.Stringer("format", format))
}

func checkFormat(f audio.Format) error {
	if f.Codec != audio.CodecPCM {
		return fmt.Errorf("%w: codec %q", ErrFormatUnsupported, f.Codec)
	}
	if f.BytesPerSample() == 0 {
		return fmt.Errorf("%w: bit depth %d", ErrFormatUnsupported, f.BitDepth)
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: %d Hz, %d channels", ErrFormatUnsupported, f.SampleRate, f.Channels)
	}
	return nil
}

// resetSegment drops scheduled audio and the state tied to the previous format
func (s *Session) resetSegment() {
	if n := s.scheduler.Clear(); n > 0 {
		s.log.Debug("discarded scheduled audio", zap.Int("chunks", n))
	}
	if s.decoder != nil {
		_ = s.decoder.Close()
		s.decoder = nil
	}
	s.timeline.Reset()
	s.started = false
}

// clearStream drops buffered audio for a seek. The format is kept and the
// next chunk is scheduled after a fresh start buffer.
func (s *Session) clearStream() {
	n := s.scheduler.Clear()
	s.timeline.Rewind()
	s.log.Info("stream cleared", zap.Int("dropped_chunks", n))
}

// endStream stops the current segment and reports playback stopped
func (s *Session) endStream() {
	wasPlaying := s.started
	s.resetSegment()
	s.format = audio.Format{}

	s.log.Info("stream ended", zap.Bool("was_playing", wasPlaying))
	s.sink.Update(s.snapshot())
}

// handleAudio validates, decodes and schedules one binary frame
func (s *Session) handleAudio(data []byte) {
	chunk, err := protocol.ParseAudioChunk(data)
	if err != nil {
		s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
		return
	}

	if s.format.IsZero() {
		s.drop(errNoFormat)
		return
	}
	if len(chunk.Payload)%s.format.FrameSize() != 0 {
		s.drop(errPartialFrame)
		return
	}
	if len(chunk.Payload) == 0 {
		return
	}

	// Created on the first chunk of a segment
	if s.decoder == nil {
		dec, err := decode.NewPCM(s.format)
		if err != nil {
			s.drop(fmt.Errorf("%w: %v", ErrFormatUnsupported, err))
			return
		}
		s.decoder = dec
	}

	samples, err := s.decoder.Decode(chunk.Payload)
	if err != nil {
		s.drop(fmt.Errorf("%w: %v", ErrProtocolViolation, err))
		return
	}

	decoded := audio.Chunk{
		Timestamp: chunk.Timestamp,
		Samples:   samples,
		Format:    s.format,
	}

	playAt, started := s.timeline.Assign(decoded.Duration(), time.Now())
	decoded.PlayAt = playAt

	if started {
		s.started = true
		s.log.Info("playback started", zap.Duration("buffered", s.timeline.Buffered()))
		s.sink.Update(s.snapshot())
	}

	s.scheduler.Submit(decoded)
}

func (s *Session) handleServerTime(msg protocol.ServerTime) {
	s.clock.ProcessSample(internalsync.Sample{
		ClientSent:     msg.ClientTransmitted,
		ServerReceived: msg.ServerReceived,
		ServerSent:     msg.ServerTransmitted,
		ClientReceived: internalsync.NowMicros(),
	})
}

func (s *Session) handleServerState(msg protocol.ServerState) {
	if msg.Controller != nil {
		s.log.Debug("group controller state",
			zap.Int("volume", msg.Controller.Volume),
			zap.Bool("muted", msg.Controller.Muted))
	}

	if msg.Metadata == nil {
		return
	}

	s.track.merge(msg.Metadata)
	s.sink.Update(s.snapshot())
}

// handleServerCommand applies volume or mute to the local output and echoes the new state
func (s *Session) handleServerCommand(msg protocol.ServerCommand) {
	if msg.Player == nil {
		return
	}

	switch msg.Player.Command {
	case "volume":
		s.engine.SetVolume(msg.Player.Volume)
	case "mute":
		s.engine.SetMuted(msg.Player.Mute)
	default:
		s.log.Debug("unsupported player command", zap.String("command", msg.Player.Command))
		return
	}

	s.log.Info("player command",
		zap.String("command", msg.Player.Command),
		zap.Int("volume", s.engine.Volume()),
		zap.Bool("muted", s.engine.Muted()))

	if err := s.sendState(); err != nil {
		s.log.Warn("failed to send state", zap.Error(err))
	}
}

// snapshot derives the now-playing state from the current segment and metadata
func (s *Session) snapshot() nowplaying.Snapshot {
	return nowplaying.Snapshot{
		IsPlaying:   s.started,
		Track:       s.track.title,
		Artist:      s.track.artist,
		Album:       s.track.album,
		ImageURL:    s.track.artworkURL,
		PlayerName:  s.cfg.PlayerName,
		PlayerID:    s.cfg.PlayerID,
		Duration:    s.track.duration,
		Elapsed:     s.track.elapsed,
		CanPlay:     !s.started,
		CanPause:    s.started,
		CanNext:     true,
		CanPrevious: true,
	}
}

func (s *Session) drop(err error) {
	s.dropped.Add(1)
	s.log.Debug("dropped inbound frame", zap.Error(err))
}
