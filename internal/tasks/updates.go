package tasks

import (
	"fmt"

	"github.com/desertthunder/spotsync/internal/models"
)

// ProgressUpdate represents a progress event during a transfer.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SnapshotSource Phase = iota
	SnapshotTarget
	Planning
	TransferPlaylists
	TransferLiked
	Done
)

func (p Phase) String() string {
	switch p {
	case SnapshotSource:
		return "snapshot_source"
	case SnapshotTarget:
		return "snapshot_target"
	case Planning:
		return "plan"
	case TransferPlaylists:
		return "playlists"
	case TransferLiked:
		return "liked"
	case Done:
		return "done"
	default:
		return ""
	}
}

func readingPlaylistsUpdate(account string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SnapshotSource,
		Message: fmt.Sprintf("Reading playlists of %s...", account),
	}
}

func readPlaylistUpdate(step, total int, pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SnapshotSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Read %s (%d tracks)", step, total, pl.Name, len(pl.Tracks)),
	}
}

func readLikedUpdate(account string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SnapshotSource,
		Message: fmt.Sprintf("Read %d liked songs from %s", count, account),
	}
}

func indexTargetUpdate(account string, playlists, liked int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SnapshotTarget,
		Message: fmt.Sprintf("Indexed %s: %d own playlists, %d liked songs", account, playlists, liked),
	}
}

func planUpdate(plan *TransferPlan) ProgressUpdate {
	create, merge := plan.PlaylistActions()
	add, skip := plan.LikedActions()
	return ProgressUpdate{
		Phase:   Planning,
		Message: fmt.Sprintf("Plan: %d playlists to create, %d to merge, %d liked songs to add, %d already present", create, merge, add, skip),
		Data:    plan,
	}
}

func playlistStartUpdate(step, total int, p *PlaylistPlan) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TransferPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %s", step, total, p.Action, p.Source.Name),
	}
}

func playlistDoneUpdate(step, total int, out *PlaylistOutcome) ProgressUpdate {
	added, skipped, failed := out.TrackCounts()
	msg := fmt.Sprintf("[%d/%d] ✓ %s (%s, %d added, %d skipped", step, total, out.Name, out.Status, added, skipped)
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	if out.Status == StatusFailed {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, out.Name, out.Reason)
	} else {
		msg += ")"
	}
	return ProgressUpdate{
		Phase:   TransferPlaylists,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    out,
	}
}

func likedBatchUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TransferLiked,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Saving liked songs %d/%d...", step, total),
	}
}

func doneUpdate(result *TransferResult) ProgressUpdate {
	msg := "Transfer complete"
	switch {
	case result.Aborted != nil:
		msg = fmt.Sprintf("Transfer aborted: %v", result.Aborted)
	case result.HasFailures():
		msg = "Transfer complete with failures"
	}
	return ProgressUpdate{Phase: Done, Message: msg, Data: result}
}
