// ABOUTME: Audio type definitions for the playback pipeline
// ABOUTME: Defines stream formats, decoded chunks and sample conversions
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// CodecPCM is the only codec the player decodes
const CodecPCM = "pcm"

// Format describes the audio of one stream segment
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSample returns the packed size of one sample, or 0 for unsupported depths
func (f Format) BytesPerSample() int {
	switch f.BitDepth {
	case 16:
		return 2
	case 24:
		return 3
	default:
		return 0
	}
}

// FrameSize returns the byte size of one interleaved frame
func (f Format) FrameSize() int {
	return f.BytesPerSample() * f.Channels
}

// IsZero reports whether the format is unset
func (f Format) IsZero() bool {
	return f == Format{}
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// Chunk is decoded PCM audio waiting for its local play time
type Chunk struct {
	Timestamp int64     // Server timestamp (microseconds)
	PlayAt    time.Time // Local play time, fixed when decoded
	Samples   []int32   // Interleaved samples in 24-bit range
	Format    Format
}

// Frames returns the number of interleaved frames in the chunk
func (c Chunk) Frames() int {
	if c.Format.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Format.Channels
}

// Duration returns the playback length of the chunk
func (c Chunk) Duration() time.Duration {
	return FramesDuration(c.Frames(), c.Format.SampleRate)
}

// FramesDuration converts a frame count to whole microseconds of audio
func FramesDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	micros := int64(frames) * 1_000_000 / int64(sampleRate)
	return time.Duration(micros) * time.Microsecond
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// SampleToFloat32 scales a 24-bit range sample to [-1, 1]
func SampleToFloat32(sample int32) float32 {
	return float32(sample) / Max24Bit
}
