package models

import (
	"fmt"
	"time"
)

// RunStatus is the terminal state of a transfer.
type RunStatus string

const (
	RunCompleted             RunStatus = "completed"
	RunCompletedWithFailures RunStatus = "completed_with_failures"
	RunAborted               RunStatus = "aborted"
	RunCancelled             RunStatus = "cancelled"
)

// Run is the persisted summary of one transfer between two accounts.
type Run struct {
	id               string
	Sequence         int
	Source           string
	Target           string
	Status           RunStatus
	DryRun           bool
	PlaylistsCreated int
	PlaylistsMerged  int
	TracksAdded      int
	TracksSkipped    int
	TracksFailed     int
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
}

var _ Model = (*Run)(nil)

func (r *Run) ID() string           { return r.id }
func (r *Run) SetID(id string)      { r.id = id }
func (r *Run) CreatedAt() time.Time { return r.StartedAt }

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks required fields before the run is stored.
func (r *Run) Validate() error {
	if r.Source == "" || r.Target == "" {
		return fmt.Errorf("run requires source and target accounts")
	}
	switch r.Status {
	case RunCompleted, RunCompletedWithFailures, RunAborted, RunCancelled:
	default:
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("invalid run timestamps")
	}
	return nil
}
