// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for stream segment decoders
package decode

// Decoder decodes one stream segment's payloads to int32 samples
type Decoder interface {
	// Decode converts a raw payload to interleaved samples
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}

var _ Decoder = (*PCMDecoder)(nil)
