package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/spotsync/internal/models"
)

// AccountError attributes a run-ending error to the account it happened on.
type AccountError struct {
	Op      string // snapshot, index or write
	Account string
	Err     error
}

func (e *AccountError) Error() string {
	return e.Op + " " + e.Account + ": " + e.Err.Error()
}

func (e *AccountError) Unwrap() error { return e.Err }

// Status is the outcome of a playlist or track.
type Status string

const (
	StatusCreated Status = "created"
	StatusMerged  Status = "merged"
	StatusAdded   Status = "added"
	StatusSkipped Status = "skipped-duplicate"
	StatusFailed  Status = "failed"
)

// ItemOutcome records what happened to a single track.
type ItemOutcome struct {
	Track  models.Track
	Status Status
	Reason string
}

// PlaylistOutcome records what happened to a source playlist and each of its tracks.
type PlaylistOutcome struct {
	Name     string
	SourceID string
	TargetID string
	Status   Status
	Reason   string
	Tracks   []ItemOutcome
}

// TrackCounts tallies the per-track statuses of the playlist.
func (o *PlaylistOutcome) TrackCounts() (added, skipped, failed int) {
	for _, t := range o.Tracks {
		switch t.Status {
		case StatusAdded:
			added++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return added, skipped, failed
}

// TransferResult is everything a transfer did, including partial work when it stopped early.
type TransferResult struct {
	Source     string
	Target     string
	DryRun     bool
	Plan       *TransferPlan
	Playlists  []PlaylistOutcome
	Liked      []ItemOutcome
	Aborted    error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Counts summarizes a [TransferResult].
type Counts struct {
	PlaylistsCreated int `json:"playlists_created"`
	PlaylistsMerged  int `json:"playlists_merged"`
	PlaylistsFailed  int `json:"playlists_failed"`
	TracksAdded      int `json:"tracks_added"`
	TracksSkipped    int `json:"tracks_skipped"`
	TracksFailed     int `json:"tracks_failed"`
	LikedAdded       int `json:"liked_added"`
	LikedSkipped     int `json:"liked_skipped"`
	LikedFailed      int `json:"liked_failed"`
}

func (r *TransferResult) Counts() Counts {
	var c Counts
	for i := range r.Playlists {
		out := &r.Playlists[i]
		switch out.Status {
		case StatusCreated:
			c.PlaylistsCreated++
		case StatusMerged:
			c.PlaylistsMerged++
		case StatusFailed:
			c.PlaylistsFailed++
		}
		added, skipped, failed := out.TrackCounts()
		c.TracksAdded += added
		c.TracksSkipped += skipped
		c.TracksFailed += failed
	}
	for _, l := range r.Liked {
		switch l.Status {
		case StatusAdded:
			c.LikedAdded++
		case StatusSkipped:
			c.LikedSkipped++
		case StatusFailed:
			c.LikedFailed++
		}
	}
	return c
}

// HasFailures reports whether any playlist or track failed.
func (r *TransferResult) HasFailures() bool {
	c := r.Counts()
	return c.PlaylistsFailed+c.TracksFailed+c.LikedFailed > 0
}

// Complete reports whether the whole plan was executed.
func (r *TransferResult) Complete() bool {
	return r.Aborted == nil
}

// Cancelled reports whether the run stopped because its context ended.
func (r *TransferResult) Cancelled() bool {
	return errors.Is(r.Aborted, context.Canceled) || errors.Is(r.Aborted, context.DeadlineExceeded)
}

// Duration returns the wall time of the transfer.
func (r *TransferResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run converts the result into its persisted history summary.
func (r *TransferResult) Run() *models.Run {
	c := r.Counts()
	run := &models.Run{
		Source:           r.Source,
		Target:           r.Target,
		DryRun:           r.DryRun,
		PlaylistsCreated: c.PlaylistsCreated,
		PlaylistsMerged:  c.PlaylistsMerged,
		TracksAdded:      c.TracksAdded + c.LikedAdded,
		TracksSkipped:    c.TracksSkipped + c.LikedSkipped,
		TracksFailed:     c.TracksFailed + c.LikedFailed,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
	}

	switch {
	case r.Cancelled():
		run.Status = models.RunCancelled
	case r.Aborted != nil:
		run.Status = models.RunAborted
	case r.HasFailures():
		run.Status = models.RunCompletedWithFailures
	default:
		run.Status = models.RunCompleted
	}
	if r.Aborted != nil {
		run.ErrorMessage = r.Aborted.Error()
	}
	return run
}
