package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/spotsync/internal/tasks"
)

var (
	_ list.Item = accountItem{}
	_ list.Item = outcomeItem{}
)

// accountItem wraps a stored account name to implement [list.Item].
type accountItem struct {
	name string
	role string
}

func (i accountItem) FilterValue() string { return i.name }
func (i accountItem) Title() string       { return i.name }
func (i accountItem) Description() string { return i.role }

// outcomeItem wraps [tasks.PlaylistOutcome] to implement [list.Item].
type outcomeItem struct {
	outcome tasks.PlaylistOutcome
}

func (i outcomeItem) FilterValue() string { return i.outcome.Name }
func (i outcomeItem) Title() string       { return i.outcome.Name }
func (i outcomeItem) Description() string {
	if i.outcome.Status == tasks.StatusFailed && len(i.outcome.Tracks) == 0 {
		return fmt.Sprintf("failed • %s", i.outcome.Reason)
	}
	added, skipped, failed := i.outcome.TrackCounts()
	desc := fmt.Sprintf("%s • %d added, %d present", i.outcome.Status, added, skipped)
	if failed > 0 {
		desc = fmt.Sprintf("%s, %d failed", desc, failed)
	}
	return desc
}
