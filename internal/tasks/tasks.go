package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
)

const localTrackReason = "local track cannot be added"

// Library is the account-scoped view of a streaming library used by [SyncEngine].
//
// [services.Client] implements it.
type Library interface {
	Account() string
	UserID(ctx context.Context) (string, error)
	Playlists() *services.Pager[models.Playlist]
	PlaylistTracks(playlistID string) *services.Pager[models.Track]
	LikedTracks() *services.Pager[models.Track]
	CreatePlaylist(ctx context.Context, pl models.Playlist) (*models.Playlist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
	AddLikedTracks(ctx context.Context, trackIDs []string) error
}

// RunRecorder persists a summary of every transfer (repositories.RunRepository).
type RunRecorder interface {
	Create(run *models.Run) error
}

// Options tunes a single transfer.
type Options struct {
	DryRun bool
	Merge  MergePolicy
	// ConfirmMerge is asked for every name match when Merge is [MergeAsk].
	ConfirmMerge  func(source, target models.Playlist) bool
	Playlists     []string // only transfer these source playlists (by name)
	SkipLiked     bool
	SkipPlaylists bool
}

func (o Options) merge() MergePolicy {
	if o.Merge == "" {
		return MergeAuto
	}
	return o.Merge
}

func (o Options) validate() error {
	if _, err := ParseMergePolicy(string(o.Merge)); err != nil {
		return err
	}
	if o.merge() == MergeAsk && o.ConfirmMerge == nil {
		return fmt.Errorf("%w: merge policy ask needs a confirmation callback", shared.ErrInvalidArgument)
	}
	return nil
}

// SyncEngine copies playlists and liked songs from one account into another.
//
// A transfer is additive: nothing on the target is ever removed or reordered, and
// running it twice adds nothing the second time.
type SyncEngine struct {
	logger   *log.Logger
	recorder RunRecorder
	now      func() time.Time
}

// NewSyncEngine creates an engine. recorder may be nil.
func NewSyncEngine(logger *log.Logger, recorder RunRecorder) *SyncEngine {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &SyncEngine{logger: logger, recorder: recorder, now: time.Now}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Transfer snapshots both libraries, plans, then executes the plan against target.
//
// The returned result is non-nil once options are valid, even when err is not: it holds the
// work done before a fatal error or cancellation stopped the run.
func (e *SyncEngine) Transfer(ctx context.Context, source, target Library, opts Options, progress chan<- ProgressUpdate) (*TransferResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	result := &TransferResult{
		Source:    source.Account(),
		Target:    target.Account(),
		DryRun:    opts.DryRun,
		StartedAt: e.now(),
	}
	logger := e.logger.With("source", result.Source, "target", result.Target)

	snap, idx, err := e.snapshot(ctx, source, target, opts, progress)
	if err != nil {
		return e.finish(logger, result, err, progress)
	}

	plan, err := BuildPlan(snap, idx, opts)
	if err != nil {
		return e.finish(logger, result, err, progress)
	}
	result.Plan = plan
	create, merge := plan.PlaylistActions()
	add, skip := plan.LikedActions()
	logger.Info("plan ready", "create", create, "merge", merge, "liked_add", add, "liked_skip", skip, "dry_run", opts.DryRun)
	e.sendProgress(progress, planUpdate(plan))

	x := &execution{
		engine:   e,
		logger:   logger,
		lib:      target,
		dryRun:   opts.DryRun,
		result:   result,
		dests:    make(map[string]*destination),
		progress: progress,
	}
	if err := x.playlists(ctx); err != nil {
		return e.finish(logger, result, writeError(target, err), progress)
	}
	if err := x.liked(ctx); err != nil {
		return e.finish(logger, result, writeError(target, err), progress)
	}
	return e.finish(logger, result, nil, progress)
}

func (e *SyncEngine) finish(logger *log.Logger, result *TransferResult, err error, progress chan<- ProgressUpdate) (*TransferResult, error) {
	result.Aborted = err
	result.FinishedAt = e.now()

	c := result.Counts()
	fields := []any{
		"playlists_created", c.PlaylistsCreated, "playlists_merged", c.PlaylistsMerged,
		"tracks_added", c.TracksAdded + c.LikedAdded, "failed", c.PlaylistsFailed + c.TracksFailed + c.LikedFailed,
		"took", result.Duration().Round(time.Millisecond),
	}
	if err != nil {
		logger.Error("transfer aborted", append(fields, "err", err)...)
	} else {
		logger.Info("transfer finished", fields...)
	}

	if e.recorder != nil {
		if rerr := e.recorder.Create(result.Run()); rerr != nil {
			logger.Warn("could not record run", "err", rerr)
		}
	}

	e.sendProgress(progress, doneUpdate(result))
	return result, err
}

// snapshot reads the source library and indexes the target concurrently.
func (e *SyncEngine) snapshot(ctx context.Context, source, target Library, opts Options, progress chan<- ProgressUpdate) (*models.LibrarySnapshot, *TargetIndex, error) {
	var (
		snap *models.LibrarySnapshot
		idx  *TargetIndex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = e.readSource(gctx, source, opts, progress)
		if err != nil {
			return &AccountError{Op: "snapshot", Account: source.Account(), Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		idx, err = e.indexTarget(gctx, target, opts, progress)
		if err != nil {
			return &AccountError{Op: "index", Account: target.Account(), Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return snap, idx, nil
}

func (e *SyncEngine) readSource(ctx context.Context, lib Library, opts Options, progress chan<- ProgressUpdate) (*models.LibrarySnapshot, error) {
	snap := &models.LibrarySnapshot{Account: lib.Account(), TakenAt: e.now()}

	if !opts.SkipPlaylists {
		e.sendProgress(progress, readingPlaylistsUpdate(lib.Account()))
		all, err := lib.Playlists().All(ctx)
		if err != nil {
			return nil, err
		}

		selected := all
		if len(opts.Playlists) > 0 {
			selected = slices.DeleteFunc(slices.Clone(all), func(pl models.Playlist) bool {
				return !slices.Contains(opts.Playlists, pl.Name)
			})
			for _, name := range opts.Playlists {
				if !slices.ContainsFunc(selected, func(pl models.Playlist) bool { return pl.Name == name }) {
					e.logger.Warn("playlist not found on source", "account", lib.Account(), "name", name)
				}
			}
		}

		for i := range selected {
			pl := &selected[i]
			tracks, err := lib.PlaylistTracks(pl.ID).All(ctx)
			if err != nil {
				return nil, err
			}
			pl.Tracks = tracks
			e.sendProgress(progress, readPlaylistUpdate(i+1, len(selected), pl))
		}
		snap.Playlists = selected
	}

	if !opts.SkipLiked {
		liked, err := lib.LikedTracks().All(ctx)
		if err != nil {
			return nil, err
		}
		snap.Liked = liked
		e.sendProgress(progress, readLikedUpdate(lib.Account(), len(liked)))
	}

	e.logger.Debug("source snapshot taken", "account", snap.Account,
		"playlists", len(snap.Playlists), "playlist_tracks", snap.TrackCount(), "liked", len(snap.Liked))
	return snap, nil
}

func (e *SyncEngine) indexTarget(ctx context.Context, lib Library, opts Options, progress chan<- ProgressUpdate) (*TargetIndex, error) {
	userID, err := lib.UserID(ctx)
	if err != nil {
		return nil, err
	}

	var playlists []models.Playlist
	if !opts.SkipPlaylists {
		if playlists, err = lib.Playlists().All(ctx); err != nil {
			return nil, err
		}
	}

	var liked []models.Track
	if !opts.SkipLiked {
		if liked, err = lib.LikedTracks().All(ctx); err != nil {
			return nil, err
		}
	}

	idx := NewTargetIndex(userID, playlists, liked)
	e.sendProgress(progress, indexTargetUpdate(lib.Account(), len(idx.Playlists), idx.LikedSize))
	return idx, nil
}

// destination is a target playlist being written during a run.
type destination struct {
	id      string
	present map[string]bool
}

// execution applies a [TransferPlan] to the target library.
type execution struct {
	engine   *SyncEngine
	logger   *log.Logger
	lib      Library
	dryRun   bool
	result   *TransferResult
	dests    map[string]*destination
	progress chan<- ProgressUpdate
}

func (x *execution) playlists(ctx context.Context) error {
	plans := x.result.Plan.Playlists
	for i := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}
		pp := &plans[i]
		x.engine.sendProgress(x.progress, playlistStartUpdate(i+1, len(plans), pp))

		out, err := x.playlist(ctx, pp)
		x.result.Playlists = append(x.result.Playlists, *out)
		x.engine.sendProgress(x.progress, playlistDoneUpdate(i+1, len(plans), out))
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *execution) playlist(ctx context.Context, pp *PlaylistPlan) (*PlaylistOutcome, error) {
	out := &PlaylistOutcome{Name: pp.TargetName, SourceID: pp.Source.ID}

	d, err := x.destination(ctx, pp, out)
	if err != nil {
		out.Status, out.Reason = StatusFailed, err.Error()
		if stops(err) {
			return out, err
		}
		x.logger.Warn("playlist failed", "name", pp.TargetName, "err", err)
		return out, nil
	}
	out.TargetID = d.id

	out.Tracks = make([]ItemOutcome, len(pp.Source.Tracks))
	var pending []int
	for i, t := range pp.Source.Tracks {
		item := &out.Tracks[i]
		item.Track = t
		key := t.Key()
		switch {
		case d.present[key]:
			item.Status = StatusSkipped
		case !t.Addable():
			item.Status, item.Reason = StatusFailed, localTrackReason
		default:
			item.Status = StatusAdded
			d.present[key] = true
			pending = append(pending, i)
		}
	}
	if x.dryRun {
		return out, nil
	}

	err = x.addInBatches(ctx, out.Tracks, pending, services.MaxPlaylistBatch, nil, func(ids []string) error {
		return x.lib.AddTracksToPlaylist(ctx, d.id, ids)
	})
	for _, i := range pending {
		if out.Tracks[i].Status == StatusFailed {
			delete(d.present, out.Tracks[i].Track.Key())
		}
	}
	return out, err
}

// destination resolves the target playlist for pp, creating it when the plan says so.
func (x *execution) destination(ctx context.Context, pp *PlaylistPlan, out *PlaylistOutcome) (*destination, error) {
	if d, ok := x.dests[pp.TargetName]; ok {
		out.Status = StatusMerged
		return d, nil
	}

	d := &destination{present: make(map[string]bool)}
	if pp.Action == ActionMerge && pp.TargetID != "" {
		existing, err := x.lib.PlaylistTracks(pp.TargetID).All(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range existing {
			d.present[t.Key()] = true
		}
		d.id = pp.TargetID
		out.Status = StatusMerged
	} else {
		if !x.dryRun {
			created, err := x.lib.CreatePlaylist(ctx, models.Playlist{
				Name:          pp.Source.Name,
				Description:   pp.Source.Description,
				Public:        pp.Source.Public,
				Collaborative: pp.Source.Collaborative,
			})
			if err != nil {
				return nil, err
			}
			d.id = created.ID
		}
		out.Status = StatusCreated
	}

	x.dests[pp.TargetName] = d
	return d, nil
}

func (x *execution) liked(ctx context.Context) error {
	plans := x.result.Plan.Liked
	x.result.Liked = make([]ItemOutcome, len(plans))

	var pending []int
	for i, lp := range plans {
		item := &x.result.Liked[i]
		item.Track = lp.Track
		switch {
		case lp.Action == ActionSkip:
			item.Status = StatusSkipped
		case !lp.Track.Addable():
			item.Status, item.Reason = StatusFailed, localTrackReason
		default:
			item.Status = StatusAdded
			pending = append(pending, i)
		}
	}
	if x.dryRun || len(pending) == 0 {
		return nil
	}

	// Saved tracks are listed newest first; saving oldest first keeps that order on the target.
	slices.Reverse(pending)

	batches := (len(pending) + services.MaxLikedBatch - 1) / services.MaxLikedBatch
	return x.addInBatches(ctx, x.result.Liked, pending, services.MaxLikedBatch,
		func(n int) { x.engine.sendProgress(x.progress, likedBatchUpdate(n, batches)) },
		func(ids []string) error { return x.lib.AddLikedTracks(ctx, ids) },
	)
}

// addInBatches writes the pending items in batches and records failures per batch.
//
// A failed batch only fails its own items. Errors that stop the run mark the rest as not attempted.
func (x *execution) addInBatches(ctx context.Context, items []ItemOutcome, pending []int, size int, before func(n int), add func(ids []string) error) error {
	for n, start := 1, 0; start < len(pending); n, start = n+1, start+size {
		batch := pending[start:min(start+size, len(pending))]

		if err := ctx.Err(); err != nil {
			markFailed(items, pending[start:], "not attempted: "+err.Error())
			return err
		}
		if before != nil {
			before(n)
		}

		ids := make([]string, len(batch))
		for j, i := range batch {
			ids[j] = items[i].Track.ID
		}

		if err := add(ids); err != nil {
			markFailed(items, batch, err.Error())
			if stops(err) {
				markFailed(items, pending[start+len(batch):], "not attempted: "+err.Error())
				return err
			}
			x.logger.Warn("batch failed", "size", len(batch), "err", err)
		}
	}
	return nil
}

func markFailed(items []ItemOutcome, idx []int, reason string) {
	for _, i := range idx {
		items[i].Status, items[i].Reason = StatusFailed, reason
	}
}

// writeError attributes fatal errors to the target account. Cancellation is returned as is.
func writeError(target Library, err error) error {
	if shared.IsFatal(err) {
		return &AccountError{Op: "write", Account: target.Account(), Err: err}
	}
	return err
}

// stops reports whether err ends the whole run rather than a single item.
func stops(err error) bool {
	return shared.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
