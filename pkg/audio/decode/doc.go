// ABOUTME: Audio decoder package for the Sendspin player
// ABOUTME: Provides the Decoder interface and the PCM implementation
// Package decode turns raw stream payloads into samples.
//
// Only uncompressed little-endian PCM at 16 and 24 bits is supported.
// Decoders output int32 samples in the 24-bit range.
//
// Example:
//
//	decoder, err := decode.NewPCM(format)
//	samples, err := decoder.Decode(payload)
package decode
