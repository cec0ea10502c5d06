// ABOUTME: Now-playing snapshots pushed out of the session
// ABOUTME: Provides the Sink interface and a Store that fans snapshots out to subscribers
package nowplaying

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Snapshot describes what the player is doing right now
type Snapshot struct {
	IsPlaying   bool
	Track       string
	Artist      string
	Album       string
	ImageURL    string
	PlayerName  string
	PlayerID    string
	Duration    time.Duration // Whole seconds, zero when unknown
	Elapsed     time.Duration // Whole seconds, zero when unknown
	CanPlay     bool
	CanPause    bool
	CanNext     bool
	CanPrevious bool
}

// String renders a one-line status
func (s Snapshot) String() string {
	state := "stopped"
	if s.IsPlaying {
		state = "playing"
	}

	if s.Track == "" {
		return state
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", state, s.Track)
	if s.Artist != "" {
		fmt.Fprintf(&b, " - %s", s.Artist)
	}
	if s.Album != "" {
		fmt.Fprintf(&b, " (%s)", s.Album)
	}
	if s.Duration > 0 {
		fmt.Fprintf(&b, " [%s/%s]", formatClock(s.Elapsed), formatClock(s.Duration))
	}
	return b.String()
}

func formatClock(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Sink receives snapshots
type Sink interface {
	Update(Snapshot)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Snapshot)

// Update calls f
func (f SinkFunc) Update(s Snapshot) {
	f(s)
}

// Discard ignores snapshots
var Discard Sink = SinkFunc(func(Snapshot) {})

// Store keeps the latest snapshot and notifies subscribers on change
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	hasAny  bool
	nextID  int
	subs    map[int]func(Snapshot)
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Snapshot))}
}

// Update records a snapshot. A playing snapshot with no track carries nothing
// to display, so it is dropped unless a track was already known, in which case
// only the playback flags are taken from it.
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()

	if snap.IsPlaying && snap.Track == "" {
		if s.current.Track == "" {
			s.mu.Unlock()
			return
		}
		merged := s.current
		merged.IsPlaying = snap.IsPlaying
		merged.CanPlay = snap.CanPlay
		merged.CanPause = snap.CanPause
		merged.CanNext = snap.CanNext
		merged.CanPrevious = snap.CanPrevious
		snap = merged
	}

	if s.hasAny && snap == s.current {
		s.mu.Unlock()
		return
	}

	s.current = snap
	s.hasAny = true

	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Get returns the latest snapshot
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers fn for future snapshots and returns a function that removes it
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
