// ABOUTME: Binary audio frame codec
// ABOUTME: Parses and builds [type][int64 BE timestamp][payload] frames
package protocol

import (
	"encoding/binary"
	"errors"
)

const (
	// BinaryMessageHeaderSize is 1 byte type + 8 bytes timestamp
	BinaryMessageHeaderSize = 1 + 8

	// AudioChunkMessageType is the binary type id servers use for player audio
	AudioChunkMessageType = 4
)

// ErrChunkTooShort is returned for binary frames without a full header
var ErrChunkTooShort = errors.New("binary frame shorter than header")

// AudioChunk is one binary audio frame. Payload aliases the frame buffer.
type AudioChunk struct {
	Type      byte
	Timestamp int64 // Microseconds, server clock
	Payload   []byte
}

// ParseAudioChunk splits a binary frame into header fields and payload
func ParseAudioChunk(data []byte) (AudioChunk, error) {
	if len(data) < BinaryMessageHeaderSize {
		return AudioChunk{}, ErrChunkTooShort
	}

	return AudioChunk{
		Type:      data[0],
		Timestamp: int64(binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize])),
		Payload:   data[BinaryMessageHeaderSize:],
	}, nil
}

// EncodeAudioChunk builds a binary frame
func EncodeAudioChunk(msgType byte, timestamp int64, payload []byte) []byte {
	frame := make([]byte, BinaryMessageHeaderSize+len(payload))
	frame[0] = msgType
	binary.BigEndian.PutUint64(frame[1:BinaryMessageHeaderSize], uint64(timestamp))
	copy(frame[BinaryMessageHeaderSize:], payload)
	return frame
}
