package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/spotsync/internal/formatter"
	"github.com/desertthunder/spotsync/internal/models"
)

// statsConcurrency bounds the accounts queried at once by List.
const statsConcurrency = 4

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

// List prints stored accounts. Unless --offline is set, each account's library is counted;
// an account that cannot be read shows its error in place of the counts.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	if err := r.storage(); err != nil {
		return err
	}

	creds, err := r.credentials.List(ctx)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		r.writePlain("No accounts stored. Run 'spotsync login <name>' to add one.\n")
		return nil
	}

	if cmd.Bool("offline") {
		t := newTable("ACCOUNT", "TOKEN EXPIRES", "UPDATED")
		for _, cred := range creds {
			t.Row(cred.Name, cred.Expiry.Local().Format("2006-01-02 15:04"), cred.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		r.writePlain("%s\n", t.String())
		return nil
	}

	if _, err := r.spotify(); err != nil {
		return err
	}

	stats := make([]*models.LibraryStats, len(creds))
	errs := make([]error, len(creds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsConcurrency)
	for i, cred := range creds {
		g.Go(func() error {
			client, err := r.client(cred.Name)
			if err != nil {
				return err
			}
			stats[i], errs[i] = client.LibraryStats(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t := newTable("ACCOUNT", "PLAYLISTS", "PLAYLIST SONGS", "LIKED SONGS")
	for i, cred := range creds {
		if errs[i] != nil {
			r.logger.Debug("library stats failed", "account", cred.Name, "error", errs[i])
			t.Row(cred.Name, "error: "+errs[i].Error(), "", "")
			continue
		}
		t.Row(cred.Name,
			strconv.FormatUint(stats[i].Playlists, 10),
			strconv.FormatUint(stats[i].TotalSongs, 10),
			strconv.FormatUint(stats[i].LikedSongs, 10),
		)
	}
	r.writePlain("%s\n", t.String())
	return nil
}

// Preview prints what a transfer from the account would read.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	name, err := accountArg(cmd, "source")
	if err != nil {
		return err
	}
	client, err := r.client(name)
	if err != nil {
		return err
	}

	userID, err := client.UserID(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", name)
	}
	playlists, err := client.Playlists().All(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to list playlists of %s", name)
	}
	liked, err := client.LikedTracks().All(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to list liked songs of %s", name)
	}

	r.writePlainHeader(fmt.Sprintf("%s (Spotify user %s)", name, userID))

	t := newTable("PLAYLIST", "TRACKS", "OWNER", "VISIBILITY")
	for _, pl := range playlists {
		t.Row(pl.Name, strconv.Itoa(pl.TrackCount), owner(pl, userID), visibility(pl))
	}
	r.writePlain("%s\n", t.String())
	r.writePlain("%d playlists, %d liked songs\n", len(playlists), len(liked))

	if !cmd.Bool("tracks") {
		return nil
	}

	for _, pl := range playlists {
		tracks, err := client.PlaylistTracks(pl.ID).All(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to read playlist %q", pl.Name)
		}
		r.writePlainln("%s", pl.Name)
		for i, track := range tracks {
			r.writePlain("  %3d. %s - %s (%s)\n", i+1, track.Artist, track.Title, formatter.FormatDuration(track.Duration))
		}
	}
	return nil
}

func owner(pl models.Playlist, userID string) string {
	if pl.OwnerID == userID {
		return "you"
	}
	return pl.OwnerID
}

func visibility(pl models.Playlist) string {
	switch {
	case pl.Collaborative:
		return "collaborative"
	case pl.Public:
		return "public"
	default:
		return "private"
	}
}
