// package formatter renders transfer results as reports (plain text, CSV, Markdown, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
)

// Format names a report encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// FormatFromPath picks the report format from a file extension, defaulting to [FormatText].
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".md", ".markdown":
		return FormatMarkdown
	case ".json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Export renders result in the given format.
func Export(result *tasks.TransferResult, format Format) ([]byte, error) {
	switch format {
	case FormatText, "":
		return ExportToText(result)
	case FormatCSV:
		return ExportToCSV(result)
	case FormatMarkdown:
		return ExportToMarkdown(result)
	case FormatJSON:
		return ExportToJSON(result)
	default:
		return nil, fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteReport writes result to path in the format implied by its extension.
func WriteReport(result *tasks.TransferResult, path string) error {
	data, err := Export(result, FormatFromPath(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Summary is the one-paragraph outcome printed after a transfer.
func Summary(result *tasks.TransferResult) string {
	c := result.Counts()
	var b strings.Builder

	verb := "Transferred"
	if result.DryRun {
		verb = "Would transfer"
	}
	fmt.Fprintf(&b, "%s %s → %s in %s\n", verb, result.Source, result.Target, FormatDuration(result.Duration()))
	fmt.Fprintf(&b, "  Playlists: %d created, %d merged, %d failed\n", c.PlaylistsCreated, c.PlaylistsMerged, c.PlaylistsFailed)
	fmt.Fprintf(&b, "  Tracks:    %d added, %d already present, %d failed\n", c.TracksAdded, c.TracksSkipped, c.TracksFailed)
	fmt.Fprintf(&b, "  Liked:     %d added, %d already present, %d failed\n", c.LikedAdded, c.LikedSkipped, c.LikedFailed)

	if n := notAttempted(result); n > 0 {
		fmt.Fprintf(&b, "  %d playlists not attempted\n", n)
	}
	return b.String()
}

// Failures lists every failed playlist and track, one per line.
func Failures(result *tasks.TransferResult) []string {
	var lines []string
	for _, pl := range result.Playlists {
		if pl.Status == tasks.StatusFailed {
			lines = append(lines, fmt.Sprintf("playlist %q: %s", pl.Name, pl.Reason))
		}
		for _, item := range pl.Tracks {
			if item.Status == tasks.StatusFailed {
				lines = append(lines, fmt.Sprintf("%q: %s - %s: %s", pl.Name, item.Track.Artist, item.Track.Title, item.Reason))
			}
		}
	}
	for _, item := range result.Liked {
		if item.Status == tasks.StatusFailed {
			lines = append(lines, fmt.Sprintf("liked: %s - %s: %s", item.Track.Artist, item.Track.Title, item.Reason))
		}
	}
	return lines
}

// ExportToText renders the summary followed by every playlist and its track outcomes.
func ExportToText(result *tasks.TransferResult) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(Summary(result))
	if result.Aborted != nil {
		buf.WriteString(fmt.Sprintf("ABORTED: %v\n", result.Aborted))
	}

	for _, pl := range result.Playlists {
		buf.WriteString(fmt.Sprintf("\nPlaylist: %s [%s]\n", pl.Name, pl.Status))
		if pl.Reason != "" {
			buf.WriteString(fmt.Sprintf("  %s\n", pl.Reason))
		}
		for i, item := range pl.Tracks {
			buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]%s\n", i+1, item.Track.Artist, item.Track.Title, item.Status, reasonSuffix(item.Reason)))
		}
	}

	if len(result.Liked) > 0 {
		buf.WriteString("\nLiked songs\n")
		for i, item := range result.Liked {
			buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]%s\n", i+1, item.Track.Artist, item.Track.Title, item.Status, reasonSuffix(item.Reason)))
		}
	}
	return buf.Bytes(), nil
}

// ExportToCSV writes one row per track with columns:
// Section, Playlist, Position, ID, Title, Artist, Album, Duration, ISRC, Status, Reason
func ExportToCSV(result *tasks.TransferResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Section", "Playlist", "Position", "ID", "Title", "Artist", "Album", "Duration", "ISRC", "Status", "Reason"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	row := func(section, playlist string, pos int, item tasks.ItemOutcome) []string {
		return []string{
			section,
			playlist,
			strconv.Itoa(pos),
			item.Track.ID,
			item.Track.Title,
			item.Track.Artist,
			item.Track.Album,
			FormatDuration(item.Track.Duration),
			item.Track.ISRC,
			string(item.Status),
			item.Reason,
		}
	}

	for _, pl := range result.Playlists {
		if len(pl.Tracks) == 0 && pl.Status == tasks.StatusFailed {
			if err := writer.Write([]string{"playlist", pl.Name, "", "", "", "", "", "", "", string(pl.Status), pl.Reason}); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
			continue
		}
		for i, item := range pl.Tracks {
			if err := writer.Write(row("playlist", pl.Name, i+1, item)); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}
	for i, item := range result.Liked {
		if err := writer.Write(row("liked", "", i+1, item)); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown renders the result as a Markdown document with a summary table.
func ExportToMarkdown(result *tasks.TransferResult) ([]byte, error) {
	var buf bytes.Buffer
	c := result.Counts()

	buf.WriteString(fmt.Sprintf("# Transfer %s → %s\n\n", result.Source, result.Target))
	if result.DryRun {
		buf.WriteString("_Dry run: nothing was written._\n\n")
	}
	if result.Aborted != nil {
		buf.WriteString(fmt.Sprintf("> **Aborted**: %v\n\n", result.Aborted))
	}

	buf.WriteString(fmt.Sprintf("**Started**: %s\n", result.StartedAt.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("**Duration**: %s\n\n", FormatDuration(result.Duration())))

	buf.WriteString("| | Added | Already present | Failed |\n|---|---|---|---|\n")
	buf.WriteString(fmt.Sprintf("| Playlist tracks | %d | %d | %d |\n", c.TracksAdded, c.TracksSkipped, c.TracksFailed))
	buf.WriteString(fmt.Sprintf("| Liked songs | %d | %d | %d |\n\n", c.LikedAdded, c.LikedSkipped, c.LikedFailed))

	if len(result.Playlists) > 0 {
		buf.WriteString("## Playlists\n\n")
		for _, pl := range result.Playlists {
			added, skipped, failed := pl.TrackCounts()
			buf.WriteString(fmt.Sprintf("### %s (%s)\n\n", pl.Name, pl.Status))
			if pl.Reason != "" {
				buf.WriteString(fmt.Sprintf("**Error**: %s\n\n", pl.Reason))
			}
			buf.WriteString(fmt.Sprintf("%d added, %d already present, %d failed\n\n", added, skipped, failed))
			for i, item := range pl.Tracks {
				if item.Status == tasks.StatusAdded || item.Status == tasks.StatusFailed {
					buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]%s\n", i+1, item.Track.Artist, item.Track.Title, albumPart(item.Track.Album), item.Status, reasonSuffix(item.Reason)))
				}
			}
			buf.WriteString("\n")
		}
	}

	if failures := likedFailures(result); len(failures) > 0 {
		buf.WriteString("## Liked songs that failed\n\n")
		for _, item := range failures {
			buf.WriteString(fmt.Sprintf("- %s - %s: %s\n", item.Track.Artist, item.Track.Title, item.Reason))
		}
	}
	return buf.Bytes(), nil
}

type jsonTrack struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	ISRC     string `json:"isrc,omitempty"`
	Duration int64  `json:"duration_ms"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

type jsonPlaylist struct {
	Name     string      `json:"name"`
	SourceID string      `json:"source_id"`
	TargetID string      `json:"target_id,omitempty"`
	Status   string      `json:"status"`
	Reason   string      `json:"reason,omitempty"`
	Tracks   []jsonTrack `json:"tracks"`
}

type jsonReport struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	DryRun     bool           `json:"dry_run"`
	Aborted    string         `json:"aborted,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     tasks.Counts   `json:"counts"`
	Playlists  []jsonPlaylist `json:"playlists"`
	Liked      []jsonTrack    `json:"liked"`
}

// ExportToJSON renders the full result as indented JSON.
func ExportToJSON(result *tasks.TransferResult) ([]byte, error) {
	report := jsonReport{
		Source:     result.Source,
		Target:     result.Target,
		DryRun:     result.DryRun,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Counts:     result.Counts(),
		Playlists:  make([]jsonPlaylist, 0, len(result.Playlists)),
		Liked:      toJSONTracks(result.Liked),
	}
	if result.Aborted != nil {
		report.Aborted = result.Aborted.Error()
	}
	for _, pl := range result.Playlists {
		report.Playlists = append(report.Playlists, jsonPlaylist{
			Name:     pl.Name,
			SourceID: pl.SourceID,
			TargetID: pl.TargetID,
			Status:   string(pl.Status),
			Reason:   pl.Reason,
			Tracks:   toJSONTracks(pl.Tracks),
		})
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

func toJSONTracks(items []tasks.ItemOutcome) []jsonTrack {
	out := make([]jsonTrack, 0, len(items))
	for _, item := range items {
		out = append(out, jsonTrack{
			ID:       item.Track.ID,
			Title:    item.Track.Title,
			Artist:   item.Track.Artist,
			Album:    item.Track.Album,
			ISRC:     item.Track.ISRC,
			Duration: item.Track.Duration.Milliseconds(),
			Status:   string(item.Status),
			Reason:   item.Reason,
		})
	}
	return out
}

// FormatDuration renders d as m:ss, or h:mm:ss past an hour.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func notAttempted(result *tasks.TransferResult) int {
	if result.Plan == nil {
		return 0
	}
	return len(result.Plan.Playlists) - len(result.Playlists)
}

func likedFailures(result *tasks.TransferResult) []tasks.ItemOutcome {
	var out []tasks.ItemOutcome
	for _, item := range result.Liked {
		if item.Status == tasks.StatusFailed {
			out = append(out, item)
		}
	}
	return out
}

func albumPart(album string) string {
	if album == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", album)
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return ": " + reason
}
