// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit and 24-bit little-endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Sendspin/sendspin-companion/pkg/audio"
)

// PCMDecoder decodes little-endian PCM audio, the byte order of the wire format
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a PCM decoder for 16 or 24-bit samples
func NewPCM(format audio.Format) (*PCMDecoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &PCMDecoder{bitDepth: format.BitDepth}, nil
}

// Decode converts PCM bytes to int32 samples. Trailing bytes that do not
// form a whole sample are rejected.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if d.bitDepth == 24 {
		if len(data)%3 != 0 {
			return nil, fmt.Errorf("24-bit payload length %d is not a multiple of 3", len(data))
		}
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return samples, nil
	}

	if len(data)%2 != 0 {
		return nil, fmt.Errorf("16-bit payload length %d is not a multiple of 2", len(data))
	}
	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
