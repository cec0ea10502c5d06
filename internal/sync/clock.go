// ABOUTME: Clock synchronization from client/time round trips
// ABOUTME: Keeps the current server offset, round-trip time and a quality estimate
package sync

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Samples slower than this are still accepted but marked degraded
	goodRTT = 50 * time.Millisecond
	// Samples slower than this mark the link lost
	degradedRTT = 100 * time.Millisecond
	// No sample for this long marks the link lost
	staleAfter = 5 * time.Second
)

// Sample holds the four timestamps of one round trip, in microseconds.
// Client stamps are local wall clock, server stamps are server clock.
type Sample struct {
	ClientSent     int64 // t1
	ServerReceived int64 // t2
	ServerSent     int64 // t3
	ClientReceived int64 // t4
}

// Offset returns ((t2-t1)+(t3-t4))/2, positive when the server clock is ahead
func (s Sample) Offset() int64 {
	_, offset := calculateOffset(s.ClientSent, s.ServerReceived, s.ServerSent, s.ClientReceived)
	return offset
}

// RTT returns (t4-t1)-(t3-t2)
func (s Sample) RTT() int64 {
	rtt, _ := calculateOffset(s.ClientSent, s.ServerReceived, s.ServerSent, s.ClientReceived)
	return rtt
}

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// Stats is a point-in-time view of the synchronizer
type Stats struct {
	Offset   int64 // Microseconds, server minus client
	RTT      int64 // Microseconds
	Quality  Quality
	Samples  int
	LastSync time.Time
}

// ClockSync tracks the latest clock offset. Only the current value is kept.
type ClockSync struct {
	mu       sync.RWMutex
	log      *zap.Logger
	offset   int64
	rtt      int64
	quality  Quality
	lastSync time.Time
	samples  int
	now      func() time.Time
}

// NewClockSync creates a new clock synchronizer
func NewClockSync(logger *zap.Logger) *ClockSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClockSync{
		log:     logger,
		quality: QualityLost,
		now:     time.Now,
	}
}

// ProcessSample updates the current offset from a completed round trip.
// Samples with a negative round-trip time are discarded.
func (cs *ClockSync) ProcessSample(s Sample) {
	rtt, offset := calculateOffset(s.ClientSent, s.ServerReceived, s.ServerSent, s.ClientReceived)

	if rtt < 0 {
		cs.log.Debug("discarding sync sample with negative rtt",
			zap.Int64("t1", s.ClientSent),
			zap.Int64("t2", s.ServerReceived),
			zap.Int64("t3", s.ServerSent),
			zap.Int64("t4", s.ClientReceived))
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.offset = offset
	cs.rtt = rtt
	cs.lastSync = cs.now()
	cs.samples++

	switch rttDur := time.Duration(rtt) * time.Microsecond; {
	case rttDur < goodRTT:
		cs.quality = QualityGood
	case rttDur < degradedRTT:
		cs.quality = QualityDegraded
	default:
		cs.quality = QualityLost
	}

	cs.log.Debug("clock sync",
		zap.Int64("offset_us", offset),
		zap.Int64("rtt_us", rtt),
		zap.Stringer("quality", cs.quality))
}

// calculateOffset computes RTT and clock offset
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	// Round-trip time
	rtt = (t4 - t1) - (t3 - t2)

	// Estimated offset (positive = server ahead of client)
	offset = ((t2 - t1) + (t3 - t4)) / 2

	return
}

// Offset returns the current offset in microseconds
func (cs *ClockSync) Offset() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset
}

// RTT returns the latest round-trip time in microseconds
func (cs *ClockSync) RTT() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.rtt
}

// Stats returns sync statistics. Quality reads as lost once samples stop arriving.
func (cs *ClockSync) Stats() Stats {
	quality := cs.CheckQuality()

	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return Stats{
		Offset:   cs.offset,
		RTT:      cs.rtt,
		Quality:  quality,
		Samples:  cs.samples,
		LastSync: cs.lastSync,
	}
}

// CheckQuality marks the sync lost when no sample arrived recently
func (cs *ClockSync) CheckQuality() Quality {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.now().Sub(cs.lastSync) > staleAfter {
		cs.quality = QualityLost
	}

	return cs.quality
}

// NowMicros returns the local wall clock in Unix microseconds, used for t1 and t4
func NowMicros() int64 {
	return time.Now().UnixMicro()
}
