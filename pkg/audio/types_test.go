// ABOUTME: Tests for audio types
// ABOUTME: Tests format sizing, chunk durations and sample conversion
package audio

import (
	"testing"
	"time"
)

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFromInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleFrom24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    [3]byte
		expected int32
	}{
		{"zero", [3]byte{0, 0, 0}, 0},
		{"positive", [3]byte{0x56, 0x34, 0x12}, 0x123456},
		{"negative", [3]byte{0x00, 0xFF, 0xFF}, -256},
		{"max", [3]byte{0xFF, 0xFF, 0x7F}, Max24Bit},
		{"min", [3]byte{0x00, 0x00, 0x80}, Min24Bit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFrom24Bit(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleToFloat32(t *testing.T) {
	if got := SampleToFloat32(Max24Bit); got != 1.0 {
		t.Errorf("expected 1.0 for max sample, got %f", got)
	}
	if got := SampleToFloat32(0); got != 0 {
		t.Errorf("expected 0 for silence, got %f", got)
	}
	// -8388608/8388607 lands just below -1
	if got := SampleToFloat32(Min24Bit); got > -1.0 {
		t.Errorf("expected min sample at or below -1.0, got %f", got)
	}
}

func TestFormatFrameSize(t *testing.T) {
	tests := []struct {
		name      string
		format    Format
		bytes     int
		frameSize int
	}{
		{"16-bit stereo", Format{Codec: CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 16}, 2, 4},
		{"24-bit stereo", Format{Codec: CodecPCM, SampleRate: 96000, Channels: 2, BitDepth: 24}, 3, 6},
		{"24-bit mono", Format{Codec: CodecPCM, SampleRate: 44100, Channels: 1, BitDepth: 24}, 3, 3},
		{"32-bit unsupported", Format{Codec: CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 32}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.BytesPerSample(); got != tt.bytes {
				t.Errorf("expected %d bytes per sample, got %d", tt.bytes, got)
			}
			if got := tt.format.FrameSize(); got != tt.frameSize {
				t.Errorf("expected frame size %d, got %d", tt.frameSize, got)
			}
		})
	}
}

func TestChunkDuration(t *testing.T) {
	format := Format{Codec: CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 16}

	// 960 stereo frames at 48kHz is 20ms
	chunk := Chunk{Samples: make([]int32, 960*2), Format: format}
	if chunk.Frames() != 960 {
		t.Errorf("expected 960 frames, got %d", chunk.Frames())
	}
	if chunk.Duration() != 20*time.Millisecond {
		t.Errorf("expected 20ms, got %v", chunk.Duration())
	}
}

func TestFramesDurationTruncates(t *testing.T) {
	// 1 frame at 44.1kHz is 22.675us, truncated to whole microseconds
	if got := FramesDuration(1, 44100); got != 22*time.Microsecond {
		t.Errorf("expected 22us, got %v", got)
	}
	if got := FramesDuration(100, 0); got != 0 {
		t.Errorf("expected 0 for zero sample rate, got %v", got)
	}
}

func TestFormatIsZero(t *testing.T) {
	if !(Format{}).IsZero() {
		t.Error("empty format should be zero")
	}
	if (Format{Codec: CodecPCM}).IsZero() {
		t.Error("format with codec should not be zero")
	}
}
