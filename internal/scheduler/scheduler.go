// ABOUTME: Play-time ordered store between the session and the output engine
// ABOUTME: Releases chunks only once their local play time has arrived
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-companion/pkg/audio"
)

// Stats tracks scheduler metrics
type Stats struct {
	Received int64
	Released int64
	Dropped  int64
	Queued   int
}

// Scheduler holds decoded chunks until their play time. The session goroutine
// is the only producer and the output engine the only consumer.
type Scheduler struct {
	mu    sync.Mutex
	queue *chunkQueue
	seq   uint64
	stats Stats
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{
		queue: newChunkQueue(),
	}
}

// Submit adds a chunk whose PlayAt has already been assigned
func (s *Scheduler) Submit(chunk audio.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.stats.Received++
	heap.Push(s.queue, queued{chunk: chunk, seq: s.seq})
}

// NextReady pops the earliest chunk whose PlayAt is not after now
func (s *Scheduler) NextReady(now time.Time) (audio.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok := s.queue.peek()
	if !ok || head.chunk.PlayAt.After(now) {
		return audio.Chunk{}, false
	}

	heap.Pop(s.queue)
	s.stats.Released++
	return head.chunk, true
}

// Clear drops every pending chunk and returns how many were dropped
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.queue.Len()
	s.queue.reset()
	s.stats.Dropped += int64(n)
	return n
}

// Len returns the number of pending chunks
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Queued = s.queue.Len()
	return stats
}
