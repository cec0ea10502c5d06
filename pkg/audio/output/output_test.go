// ABOUTME: Tests for the output engine
// ABOUTME: Uses a fake backend to drive the device callback directly
package output

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Sendspin/sendspin-companion/pkg/audio"
	"github.com/drgolem/ringbuffer"
)

var _ Backend = (*Malgo)(nil)
var _ Backend = (*Oto)(nil)

var stereo48k = audio.Format{Codec: audio.CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 16}

type fakeStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeBackend struct {
	mu      sync.Mutex
	err     error
	configs []StreamConfig
	fills   []FillFunc
	streams []*fakeStream
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(cfg StreamConfig, fill FillFunc) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.configs = append(b.configs, cfg)
	if b.err != nil {
		return nil, b.err
	}
	s := &fakeStream{}
	b.fills = append(b.fills, fill)
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.configs)
}

func (b *fakeBackend) stream(i int) (*fakeStream, FillFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[i], b.fills[i]
}

type fakeSource struct {
	mu     sync.Mutex
	chunks []audio.Chunk
}

func (s *fakeSource) push(c audio.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
}

func (s *fakeSource) NextReady(now time.Time) (audio.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 || s.chunks[0].PlayAt.After(now) {
		return audio.Chunk{}, false
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func TestFillerEmptyQueueIsSilence(t *testing.T) {
	e := NewEngine(&fakeBackend{})
	fill := e.filler(ringbuffer.New(1024))

	out := make([]byte, 256)
	for i := range out {
		out[i] = 0xFF
	}

	fill(out)

	for i, b := range out {
		if b != 0 {
			t.Fatalf("expected silence at byte %d, got %#x", i, b)
		}
	}
	if e.Stats().Underruns != 1 {
		t.Errorf("expected 1 underrun, got %d", e.Stats().Underruns)
	}
}

func TestFillerPadsPartialQueue(t *testing.T) {
	e := NewEngine(&fakeBackend{})
	queue := ringbuffer.New(1024)
	fill := e.filler(queue)

	if _, err := queue.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("queue write failed: %v", err)
	}

	out := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	fill(out)

	expected := []byte{1, 2, 3, 4, 0, 0, 0, 0}
	for i := range expected {
		if out[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, out)
		}
	}
}

func TestEngineDrainsReadyChunks(t *testing.T) {
	backend := &fakeBackend{}
	src := &fakeSource{}
	e := NewEngine(backend, WithDevice("dev-1"))

	src.push(audio.Chunk{
		PlayAt:  time.Now().Add(-time.Millisecond),
		Samples: []int32{audio.Max24Bit, 0, -audio.Max24Bit, 0},
		Format:  stereo48k,
	})

	e.Start(src)
	defer e.Stop()

	waitFor(t, "chunk played", func() bool { return e.Stats().Played == 1 })

	if backend.configs[0].DeviceID != "dev-1" || backend.configs[0].SampleRate != 48000 || backend.configs[0].Channels != 2 {
		t.Errorf("unexpected stream config %+v", backend.configs[0])
	}

	_, fill := backend.stream(0)
	out := make([]byte, 4*4)
	fill(out)

	got := readFloats(out)
	expected := []float32{1, 0, -1, 0}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("sample %d: expected %f, got %f", i, expected[i], got[i])
		}
	}

	if e.Stats().Format != stereo48k {
		t.Errorf("expected current format %v, got %v", stereo48k, e.Stats().Format)
	}
}

func TestEngineSkipsFutureChunks(t *testing.T) {
	backend := &fakeBackend{}
	src := &fakeSource{}
	e := NewEngine(backend)

	src.push(audio.Chunk{PlayAt: time.Now().Add(time.Hour), Samples: []int32{1, 1}, Format: stereo48k})

	e.Start(src)
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	if backend.opened() != 0 {
		t.Errorf("expected no stream for a future chunk, got %d", backend.opened())
	}
}

func TestEngineRebuildsOnFormatChange(t *testing.T) {
	backend := &fakeBackend{}
	src := &fakeSource{}
	e := NewEngine(backend)

	hiRes := audio.Format{Codec: audio.CodecPCM, SampleRate: 96000, Channels: 2, BitDepth: 24}
	past := time.Now().Add(-time.Second)
	src.push(audio.Chunk{PlayAt: past, Samples: []int32{1, 1}, Format: stereo48k})
	src.push(audio.Chunk{PlayAt: past, Samples: []int32{2, 2}, Format: stereo48k})
	src.push(audio.Chunk{PlayAt: past, Samples: []int32{3, 3}, Format: hiRes})

	e.Start(src)
	defer e.Stop()

	waitFor(t, "three chunks played", func() bool { return e.Stats().Played == 3 })

	if backend.opened() != 2 {
		t.Fatalf("expected 2 streams, got %d", backend.opened())
	}

	first, _ := backend.stream(0)
	if !first.isClosed() {
		t.Error("expected first stream closed on format change")
	}
	if backend.configs[1].SampleRate != 96000 {
		t.Errorf("expected second stream at 96000Hz, got %d", backend.configs[1].SampleRate)
	}
	if e.Stats().Rebuilds != 2 {
		t.Errorf("expected 2 rebuilds, got %d", e.Stats().Rebuilds)
	}
}

func TestEngineStopClosesStream(t *testing.T) {
	backend := &fakeBackend{}
	src := &fakeSource{}
	e := NewEngine(backend)

	src.push(audio.Chunk{PlayAt: time.Now(), Samples: []int32{1, 1}, Format: stereo48k})
	e.Start(src)
	waitFor(t, "chunk played", func() bool { return e.Stats().Played == 1 })

	e.Stop()

	s, _ := backend.stream(0)
	if !s.isClosed() {
		t.Error("expected stream closed after stop")
	}

	// Second stop is a no-op
	e.Stop()
}

func TestEngineDeviceFailureDropsAudio(t *testing.T) {
	backend := &fakeBackend{err: errors.New("no device")}
	src := &fakeSource{}
	e := NewEngine(backend)

	past := time.Now().Add(-time.Second)
	for i := 0; i < 3; i++ {
		src.push(audio.Chunk{PlayAt: past, Samples: []int32{1, 1}, Format: stereo48k})
	}

	e.Start(src)
	defer e.Stop()

	waitFor(t, "chunks dropped", func() bool { return e.Stats().Dropped == 3 })

	// The failing format is not retried for every chunk
	if backend.opened() != 1 {
		t.Errorf("expected a single open attempt, got %d", backend.opened())
	}
	if e.Stats().Played != 0 {
		t.Errorf("expected nothing played, got %d", e.Stats().Played)
	}
}

func TestEngineMuteWritesSilence(t *testing.T) {
	backend := &fakeBackend{}
	src := &fakeSource{}
	e := NewEngine(backend)
	e.SetMuted(true)

	src.push(audio.Chunk{PlayAt: time.Now(), Samples: []int32{audio.Max24Bit, audio.Max24Bit}, Format: stereo48k})
	e.Start(src)
	defer e.Stop()

	waitFor(t, "chunk played", func() bool { return e.Stats().Played == 1 })

	_, fill := backend.stream(0)
	out := make([]byte, 8)
	fill(out)

	for _, v := range readFloats(out) {
		if v != 0 {
			t.Errorf("expected muted sample 0, got %f", v)
		}
	}
}

func TestEngineVolumeClamp(t *testing.T) {
	e := NewEngine(&fakeBackend{})

	e.SetVolume(150)
	if e.Volume() != 100 {
		t.Errorf("expected 100, got %d", e.Volume())
	}
	e.SetVolume(-5)
	if e.Volume() != 0 {
		t.Errorf("expected 0, got %d", e.Volume())
	}
}

func TestNegativeSyncDelayIsIgnored(t *testing.T) {
	backend := &fakeBackend{}
	src := &fakeSource{}
	e := NewEngine(backend, WithSyncDelay(-time.Hour))

	src.push(audio.Chunk{PlayAt: time.Now(), Samples: []int32{1, 1}, Format: stereo48k})
	e.Start(src)
	defer e.Stop()

	waitFor(t, "chunk played", func() bool { return e.Stats().Played == 1 })
}

func TestPositiveSyncDelayHoldsFirstChunk(t *testing.T) {
	backend := &fakeBackend{}
	src := &fakeSource{}
	e := NewEngine(backend, WithSyncDelay(time.Hour))

	src.push(audio.Chunk{PlayAt: time.Now(), Samples: []int32{1, 1}, Format: stereo48k})
	e.Start(src)

	waitFor(t, "stream opened", func() bool { return backend.opened() == 1 })
	time.Sleep(10 * time.Millisecond)
	if e.Stats().Played != 0 {
		t.Error("expected chunk held back by sync delay")
	}

	// Stop interrupts the delay
	e.Stop()
}

func TestGetVolumeMultiplier(t *testing.T) {
	tests := []struct {
		name     string
		volume   int
		muted    bool
		expected float32
	}{
		{"full", 100, false, 1},
		{"half", 50, false, 0.5},
		{"muted", 100, true, 0},
		{"over", 200, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getVolumeMultiplier(tt.volume, tt.muted); got != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestAppendFloat32LEReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	out := appendFloat32LE(buf, []int32{0, audio.Max24Bit}, 0.5)

	if len(out) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(out))
	}
	if &out[0] != &buf[:1][0] {
		t.Error("expected conversion to reuse the scratch buffer")
	}

	got := readFloats(out)
	if got[0] != 0 || got[1] != 0.5 {
		t.Errorf("expected [0 0.5], got %v", got)
	}
}

func TestFillReaderWholeSamples(t *testing.T) {
	var asked int
	r := fillReader(func(out []byte) { asked = len(out) })

	n, err := r.Read(make([]byte, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 8 || asked != 8 {
		t.Errorf("expected 8 bytes filled, got n=%d asked=%d", n, asked)
	}
}
