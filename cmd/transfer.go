package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotsync/internal/formatter"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
)

// Transfer copies the source account's playlists and liked songs into the target account.
//
// Per-item failures are reported but do not fail the command; a run that stops early
// (rate limit exhausted, revoked credential, interrupt) exits non-zero after printing what was done.
func (r *Runner) Transfer(ctx context.Context, cmd *cli.Command) error {
	sourceName, err := accountArg(cmd, "source")
	if err != nil {
		return err
	}
	targetName, err := accountArg(cmd, "target")
	if err != nil {
		return err
	}
	if sourceName == targetName {
		return fmt.Errorf("%w: source and target must be different accounts", shared.ErrInvalidArgument)
	}

	merge, err := tasks.ParseMergePolicy(cmd.String("merge"))
	if err != nil {
		return err
	}
	opts := tasks.Options{
		DryRun:        cmd.Bool("dry-run"),
		Merge:         merge,
		Playlists:     cmd.StringSlice("playlist"),
		SkipLiked:     cmd.Bool("skip-liked"),
		SkipPlaylists: cmd.Bool("skip-playlists"),
	}
	if merge == tasks.MergeAsk {
		opts.ConfirmMerge = func(source, target models.Playlist) bool {
			return r.confirm("%s already has a playlist named %q (%d tracks). Merge into it?", targetName, target.Name, target.TrackCount)
		}
	}

	source, err := r.client(sourceName)
	if err != nil {
		return err
	}
	target, err := r.client(targetName)
	if err != nil {
		return err
	}

	r.logger.Info("starting transfer", "source", sourceName, "target", targetName, "dry_run", opts.DryRun, "merge", merge)
	if opts.DryRun {
		r.writePlain("Dry run: nothing will be written to %s.\n", targetName)
	}
	r.writePlain("Transferring %s → %s\n\n", sourceName, targetName)

	progress := make(chan tasks.ProgressUpdate, 64)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progress {
			r.printProgress(update)
		}
	}()

	result, err := r.engine(r.logger).Transfer(ctx, source, target, opts, progress)
	close(progress)
	<-printed

	if result == nil {
		return err
	}

	r.writePlainln("%s", formatter.Summary(result))
	if failures := formatter.Failures(result); len(failures) > 0 {
		r.writePlainln("Failures:")
		for _, line := range failures {
			r.writePlain("  - %s\n", line)
		}
	}

	if path := cmd.String("report"); path != "" {
		if werr := formatter.WriteReport(result, path); werr != nil {
			r.logger.Error("failed to write report", "path", path, "error", werr)
		} else {
			r.writePlain("\nReport written to %s\n", path)
		}
	}

	if err != nil {
		if result.Cancelled() {
			r.writePlainln("Transfer cancelled. Run the same command again to pick up where it stopped.")
		} else {
			r.writePlainln("Transfer aborted: %v", err)
			r.writePlain("Already transferred items are skipped when the command is run again.\n")
		}
		return err
	}
	return nil
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.SnapshotSource, tasks.SnapshotTarget:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.Planning:
		r.writePlain("\n📝 %s\n\n", update.Message)
	case tasks.TransferPlaylists:
		if _, done := update.Data.(*tasks.PlaylistOutcome); done {
			r.writePlain("   %s\n", update.Message)
		}
	case tasks.TransferLiked:
		r.writePlain("💚 %s\n", update.Message)
	}
}
