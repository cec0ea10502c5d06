// ABOUTME: Sequential play time assignment for one stream segment
// ABOUTME: Places chunks back to back after a start buffer delay
package scheduler

import "time"

// Timeline hands out gap-free play times. It is not safe for concurrent use;
// the session goroutine owns it.
type Timeline struct {
	startBuffer time.Duration
	next        time.Time
	buffered    time.Duration
	started     bool
}

// NewTimeline creates a timeline that delays the first chunk by startBuffer
func NewTimeline(startBuffer time.Duration) *Timeline {
	return &Timeline{startBuffer: startBuffer}
}

// Assign returns the play time for a chunk of length d and advances the
// cursor. started is true exactly once per segment, on the chunk that brings
// the buffered total to the start buffer.
func (t *Timeline) Assign(d time.Duration, now time.Time) (playAt time.Time, started bool) {
	if t.next.IsZero() {
		t.next = now.Add(t.startBuffer)
	}

	playAt = t.next
	t.next = t.next.Add(d)
	t.buffered += d

	if !t.started && t.buffered >= t.startBuffer {
		t.started = true
		started = true
	}

	return playAt, started
}

// Started reports whether the segment has buffered enough to play
func (t *Timeline) Started() bool {
	return t.started
}

// Buffered returns the total duration assigned in this segment
func (t *Timeline) Buffered() time.Duration {
	return t.buffered
}

// Rewind restarts the cursor and buffered total but keeps the started flag.
// Used when the server clears buffers mid-stream.
func (t *Timeline) Rewind() {
	t.next = time.Time{}
	t.buffered = 0
}

// Reset starts a new segment
func (t *Timeline) Reset() {
	t.Rewind()
	t.started = false
}
