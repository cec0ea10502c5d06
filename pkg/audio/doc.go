// ABOUTME: Audio fundamentals for the Sendspin player
// ABOUTME: Defines Format, Chunk types and sample conversion functions
// Package audio provides the core audio types shared by the decoder,
// scheduler and output engine.
//
// All decoded samples are int32 values in the signed 24-bit range, so
// 16-bit input is left-justified and 24-bit input is sign extended.
//
// Example:
//
//	format := audio.Format{
//	    Codec:      audio.CodecPCM,
//	    SampleRate: 48000,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//
//	frameSize := format.FrameSize() // 4
package audio
