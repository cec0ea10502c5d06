// ABOUTME: Sample conversion to the device float32 representation
// ABOUTME: Applies software volume and mute while converting
package output

import (
	"encoding/binary"
	"math"

	"github.com/Sendspin/sendspin-companion/pkg/audio"
)

// bytesPerFloat is the size of one float32 device sample
const bytesPerFloat = 4

// appendFloat32LE converts samples to little-endian float32, reusing dst's storage
func appendFloat32LE(dst []byte, samples []int32, gain float32) []byte {
	need := len(samples) * bytesPerFloat
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]

	for i, s := range samples {
		v := audio.SampleToFloat32(s) * gain
		binary.LittleEndian.PutUint32(dst[i*bytesPerFloat:], math.Float32bits(v))
	}
	return dst
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0
	}
	return float32(clampVolume(volume)) / 100
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
