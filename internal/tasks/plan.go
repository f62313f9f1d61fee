package tasks

import (
	"fmt"
	"slices"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

// MergePolicy decides what happens when a source playlist name already exists on the target.
type MergePolicy string

const (
	MergeAuto  MergePolicy = "auto"  // merge silently into the same-named playlist
	MergeNever MergePolicy = "never" // always create a new playlist
	MergeAsk   MergePolicy = "ask"   // ask [Options.ConfirmMerge] for every name match
)

// ParseMergePolicy maps a flag value to a [MergePolicy]. Empty means [MergeAuto].
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case "", MergeAuto:
		return MergeAuto, nil
	case MergeNever, MergeAsk:
		return MergePolicy(s), nil
	default:
		return "", fmt.Errorf("%w: merge policy must be auto, never or ask, got %q", shared.ErrInvalidArgument, s)
	}
}

// Action is what the plan does with a playlist or liked track.
type Action string

const (
	ActionCreate Action = "create"
	ActionMerge  Action = "merge"
	ActionAdd    Action = "add"
	ActionSkip   Action = "skip"
)

// TargetIndex is the part of the target library the planner needs.
type TargetIndex struct {
	UserID    string
	Playlists map[string]models.Playlist // own playlists by name, first occurrence wins
	Liked     map[string]bool            // liked track keys
	LikedSize int
}

// NewTargetIndex keeps the playlists owned by userID (or collaborative) and indexes liked keys.
func NewTargetIndex(userID string, playlists []models.Playlist, liked []models.Track) *TargetIndex {
	idx := &TargetIndex{
		UserID:    userID,
		Playlists: make(map[string]models.Playlist),
		Liked:     make(map[string]bool, len(liked)),
		LikedSize: len(liked),
	}
	for _, pl := range playlists {
		if pl.OwnerID != userID && !pl.Collaborative {
			continue
		}
		if _, ok := idx.Playlists[pl.Name]; !ok {
			idx.Playlists[pl.Name] = pl
		}
	}
	for _, t := range liked {
		idx.Liked[t.Key()] = true
	}
	return idx
}

// PlaylistPlan is the planned action for one source playlist.
//
// TargetID is set only when merging into a playlist that already exists on the target.
// A merge with an empty TargetID goes into the playlist created earlier in the same run,
// or creates it when that earlier creation failed.
type PlaylistPlan struct {
	Source     models.Playlist
	Action     Action
	TargetID   string
	TargetName string
}

// LikedPlan is the planned action for one source liked track.
type LikedPlan struct {
	Track  models.Track
	Action Action
}

// TransferPlan is computed once from the two snapshots and never changed while executing.
type TransferPlan struct {
	Playlists []PlaylistPlan
	Liked     []LikedPlan
}

// PlaylistActions counts playlists to create and to merge.
func (p *TransferPlan) PlaylistActions() (create, merge int) {
	for _, pp := range p.Playlists {
		if pp.Action == ActionCreate {
			create++
		} else {
			merge++
		}
	}
	return create, merge
}

// LikedActions counts liked tracks to add and to skip.
func (p *TransferPlan) LikedActions() (add, skip int) {
	for _, lp := range p.Liked {
		if lp.Action == ActionAdd {
			add++
		} else {
			skip++
		}
	}
	return add, skip
}

// BuildPlan decides create or merge for every source playlist and add or skip for every liked track.
//
// Names match exactly. A name is only ever created once per plan: later source playlists
// sharing a name merge into whatever the first one produced.
func BuildPlan(source *models.LibrarySnapshot, target *TargetIndex, opts Options) (*TransferPlan, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	plan := &TransferPlan{}

	if !opts.SkipPlaylists {
		claimed := make(map[string]string)
		for _, pl := range source.Playlists {
			if len(opts.Playlists) > 0 && !slices.Contains(opts.Playlists, pl.Name) {
				continue
			}

			pp := PlaylistPlan{Source: pl, TargetName: pl.Name, Action: ActionCreate}
			if targetID, ok := claimed[pl.Name]; ok {
				pp.Action, pp.TargetID = ActionMerge, targetID
				plan.Playlists = append(plan.Playlists, pp)
				continue
			}

			existing, exists := target.Playlists[pl.Name]
			switch {
			case exists && opts.merge() == MergeAuto:
				pp.Action, pp.TargetID = ActionMerge, existing.ID
			case exists && opts.merge() == MergeAsk && opts.ConfirmMerge(pl, existing):
				pp.Action, pp.TargetID = ActionMerge, existing.ID
			}

			claimed[pl.Name] = pp.TargetID
			plan.Playlists = append(plan.Playlists, pp)
		}
	}

	if !opts.SkipLiked {
		seen := make(map[string]bool, len(source.Liked))
		for _, t := range source.Liked {
			key := t.Key()
			lp := LikedPlan{Track: t, Action: ActionAdd}
			if target.Liked[key] || seen[key] {
				lp.Action = ActionSkip
			}
			seen[key] = true
			plan.Liked = append(plan.Liked, lp)
		}
	}
	return plan, nil
}
