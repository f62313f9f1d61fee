package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotsync/internal/formatter"
	"github.com/desertthunder/spotsync/internal/shared"
)

// History prints recorded transfers, most recent first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit < 0 {
		return fmt.Errorf("%w: --limit must not be negative", shared.ErrInvalidArgument)
	}
	if err := r.storage(); err != nil {
		return err
	}

	criteria := map[string]any{"limit": limit}
	if account := cmd.String("account"); account != "" {
		criteria["account"] = account
	}

	runs, err := r.runs.List(criteria)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		r.writePlain("No transfers recorded yet.\n")
		return nil
	}

	t := newTable("#", "STARTED", "SOURCE", "TARGET", "STATUS", "PLAYLISTS", "ADDED", "SKIPPED", "FAILED", "TIME")
	for _, run := range runs {
		status := string(run.Status)
		if run.DryRun {
			status += " (dry run)"
		}
		t.Row(
			strconv.Itoa(run.Sequence),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Source,
			run.Target,
			status,
			fmt.Sprintf("%d new, %d merged", run.PlaylistsCreated, run.PlaylistsMerged),
			strconv.Itoa(run.TracksAdded),
			strconv.Itoa(run.TracksSkipped),
			strconv.Itoa(run.TracksFailed),
			formatter.FormatDuration(run.Duration()),
		)
	}
	r.writePlain("%s\n", t.String())
	return nil
}
