// ABOUTME: Priority queue of decoded chunks ordered by play time
// ABOUTME: Ties keep submission order so chunks are never reordered
package scheduler

import (
	"container/heap"

	"github.com/Sendspin/sendspin-companion/pkg/audio"
)

type queued struct {
	chunk audio.Chunk
	seq   uint64
}

// chunkQueue implements heap.Interface
type chunkQueue struct {
	items []queued
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	heap.Init(q)
	return q
}

func (q *chunkQueue) Len() int { return len(q.items) }

func (q *chunkQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.chunk.PlayAt.Equal(b.chunk.PlayAt) {
		return a.seq < b.seq
	}
	return a.chunk.PlayAt.Before(b.chunk.PlayAt)
}

func (q *chunkQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *chunkQueue) Push(x interface{}) {
	q.items = append(q.items, x.(queued))
}

func (q *chunkQueue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items[n-1] = queued{}
	q.items = q.items[:n-1]
	return item
}

func (q *chunkQueue) peek() (queued, bool) {
	if len(q.items) == 0 {
		return queued{}, false
	}
	return q.items[0], true
}

func (q *chunkQueue) reset() {
	q.items = nil
}
