package models

import (
	"time"

	"github.com/desertthunder/spotsync/internal/shared"
)

// Track represents a song in a playlist or in the liked collection.
type Track struct {
	ID       string        // Content identifier, portable across accounts
	URI      string        // spotify:track:<id>
	Title    string        // Track name
	Artist   string        // Primary artist
	Album    string        // Album name
	Duration time.Duration // Track length
	ISRC     string        // International Standard Recording Code
	IsLocal  bool          // Local files have no content identifier and cannot be added remotely
}

// Key returns the identity used for deduplication: the content identifier when present,
// otherwise the normalized title/artist pair.
func (t Track) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return "~" + shared.NormalizeTrackKey(t.Title, t.Artist)
}

// Addable reports whether the track can be written to another account.
func (t Track) Addable() bool {
	return t.ID != "" && !t.IsLocal
}

// Playlist represents a playlist with its ordered tracks.
//
// Listing calls fill in metadata and TrackCount only; Tracks is populated when the playlist is read in full.
type Playlist struct {
	ID            string
	Name          string
	Description   string
	OwnerID       string
	Public        bool
	Collaborative bool
	TrackCount    int
	Tracks        []Track
}

// LibrarySnapshot is the state of one account's collection at the moment it was read.
type LibrarySnapshot struct {
	Account   string
	Playlists []Playlist
	Liked     []Track
	TakenAt   time.Time
}

// TrackCount returns the number of playlist entries across all playlists.
func (s *LibrarySnapshot) TrackCount() int {
	n := 0
	for _, pl := range s.Playlists {
		n += len(pl.Tracks)
	}
	return n
}

// LibraryStats summarizes an account for the preview command.
type LibraryStats struct {
	LikedSongs uint64
	Playlists  uint64
	TotalSongs uint64
}
