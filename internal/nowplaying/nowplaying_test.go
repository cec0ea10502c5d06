// ABOUTME: Tests for now-playing snapshots and the store
// ABOUTME: Tests filtering of empty playing snapshots, dedup and subscriptions
package nowplaying

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestStoreDropsPlayingWithoutTrack(t *testing.T) {
	is := is.New(t)
	store := NewStore()

	var got []Snapshot
	store.Subscribe(func(s Snapshot) { got = append(got, s) })

	store.Update(Snapshot{IsPlaying: true, CanPause: true})

	is.Equal(len(got), 0)             // nothing to display yet
	is.Equal(store.Get(), Snapshot{}) // store unchanged
}

func TestStoreMergesFlagsIntoKnownTrack(t *testing.T) {
	is := is.New(t)
	store := NewStore()

	store.Update(Snapshot{Track: "Song", Artist: "Band", CanPlay: true, CanNext: true, CanPrevious: true})
	store.Update(Snapshot{IsPlaying: true, CanPause: true, CanNext: true, CanPrevious: true})

	cur := store.Get()
	is.Equal(cur.Track, "Song") // track kept
	is.True(cur.IsPlaying)      // playing flag applied
	is.True(cur.CanPause)
	is.True(!cur.CanPlay)
}

func TestStoreSkipsUnchanged(t *testing.T) {
	is := is.New(t)
	store := NewStore()

	calls := 0
	store.Subscribe(func(Snapshot) { calls++ })

	snap := Snapshot{Track: "Song", IsPlaying: true}
	store.Update(snap)
	store.Update(snap)

	is.Equal(calls, 1) // duplicate suppressed
}

func TestStoreClearedSnapshotIsDelivered(t *testing.T) {
	is := is.New(t)
	store := NewStore()

	var last Snapshot
	store.Subscribe(func(s Snapshot) { last = s })

	store.Update(Snapshot{Track: "Song", IsPlaying: true})
	store.Update(Snapshot{})

	is.Equal(last, Snapshot{}) // cleared snapshot reaches subscribers
}

func TestUnsubscribe(t *testing.T) {
	is := is.New(t)
	store := NewStore()

	calls := 0
	unsubscribe := store.Subscribe(func(Snapshot) { calls++ })
	store.Update(Snapshot{Track: "One"})
	unsubscribe()
	store.Update(Snapshot{Track: "Two"})

	is.Equal(calls, 1)
}

func TestSnapshotString(t *testing.T) {
	tests := []struct {
		name     string
		snap     Snapshot
		expected string
	}{
		{"idle", Snapshot{}, "stopped"},
		{"playing no track", Snapshot{IsPlaying: true}, "playing"},
		{"full", Snapshot{
			IsPlaying: true,
			Track:     "Song",
			Artist:    "Band",
			Album:     "Record",
			Duration:  3*time.Minute + 5*time.Second,
			Elapsed:   61 * time.Second,
		}, "playing: Song - Band (Record) [1:01/3:05]"},
		{"paused track only", Snapshot{Track: "Song"}, "stopped: Song"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(tt.snap.String(), tt.expected)
		})
	}
}

func TestSinkFunc(t *testing.T) {
	is := is.New(t)

	var got Snapshot
	var sink Sink = SinkFunc(func(s Snapshot) { got = s })
	sink.Update(Snapshot{Track: "x"})

	is.Equal(got.Track, "x")
	Discard.Update(Snapshot{Track: "ignored"})
}
