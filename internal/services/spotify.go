// Spotify Web API implementation of [Provider]
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	localTrackPrefix = "spotify:local:"

	// DefaultHTTPTimeout bounds every API request and token exchange.
	DefaultHTTPTimeout = 30 * time.Second
)

// SpotifyProvider implements [Provider] over the zmb3 Spotify client.
//
// It holds no token: each call builds a client around the token it was given.
type SpotifyProvider struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*SpotifyProvider)(nil)

// SpotifyOption configures a [SpotifyProvider].
type SpotifyOption func(*SpotifyProvider)

// WithAPIBaseURL points the provider at an alternative Web API root (tests, proxies).
func WithAPIBaseURL(url string) SpotifyOption {
	return func(p *SpotifyProvider) { p.baseURL = strings.TrimSuffix(url, "/") + "/" }
}

// WithTokenURL overrides the accounts service token endpoint used for refresh.
func WithTokenURL(url string) SpotifyOption {
	return func(p *SpotifyProvider) { p.oauth.Endpoint.TokenURL = url }
}

// WithHTTPClient sets the client whose transport carries every request.
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(p *SpotifyProvider) { p.httpClient = c }
}

// NewSpotifyProvider creates a provider for the registered application in cfg.
func NewSpotifyProvider(cfg shared.SpotifyConfig, opts ...SpotifyOption) *SpotifyProvider {
	p := &SpotifyProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// client builds a Spotify client whose requests carry token and whose error statuses
// come back as typed errors.
func (p *SpotifyProvider) client(token *oauth2.Token) *spotify.Client {
	base := p.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	httpClient := &http.Client{
		Timeout: p.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   &statusTransport{base: base},
		},
	}

	var opts []spotify.ClientOption
	if p.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(p.baseURL))
	}
	return spotify.New(httpClient, opts...)
}

func (p *SpotifyProvider) CurrentUser(ctx context.Context, token *oauth2.Token) (*User, error) {
	u, err := p.client(token).CurrentUser(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get current user")
	}
	return &User{ID: u.ID, DisplayName: u.DisplayName}, nil
}

func (p *SpotifyProvider) PlaylistsPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*Page[models.Playlist], error) {
	page, err := p.client(token).CurrentUsersPlaylists(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playlists")
	}

	items := make([]models.Playlist, 0, len(page.Playlists))
	for i := range page.Playlists {
		items = append(items, convertPlaylist(&page.Playlists[i]))
	}
	return &Page[models.Playlist]{Items: items, Total: int(page.Total), HasNext: page.Next != ""}, nil
}

func (p *SpotifyProvider) PlaylistTracksPage(ctx context.Context, token *oauth2.Token, playlistID string, offset, limit int) (*Page[models.Track], error) {
	page, err := p.client(token).GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list items of playlist %s", playlistID)
	}

	items := make([]models.Track, 0, len(page.Items))
	for _, item := range page.Items {
		// episodes and removed tracks
		if item.Track.Track == nil {
			continue
		}
		items = append(items, convertTrack(item.Track.Track))
	}
	return &Page[models.Track]{Items: items, Total: int(page.Total), HasNext: page.Next != ""}, nil
}

func (p *SpotifyProvider) LikedTracksPage(ctx context.Context, token *oauth2.Token, offset, limit int) (*Page[models.Track], error) {
	page, err := p.client(token).CurrentUsersTracks(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list saved tracks")
	}

	items := make([]models.Track, 0, len(page.Tracks))
	for i := range page.Tracks {
		items = append(items, convertTrack(&page.Tracks[i].FullTrack))
	}
	return &Page[models.Track]{Items: items, Total: int(page.Total), HasNext: page.Next != ""}, nil
}

func (p *SpotifyProvider) CreatePlaylist(ctx context.Context, token *oauth2.Token, userID string, pl models.Playlist) (*models.Playlist, error) {
	created, err := p.client(token).CreatePlaylistForUser(ctx, userID, pl.Name, pl.Description, pl.Public, pl.Collaborative)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create playlist %q", pl.Name)
	}

	out := convertPlaylist(&created.SimplePlaylist)
	return &out, nil
}

func (p *SpotifyProvider) AddTracksToPlaylist(ctx context.Context, token *oauth2.Token, playlistID string, trackIDs []string) error {
	if len(trackIDs) > MaxPlaylistBatch {
		return fmt.Errorf("%w: %d tracks exceeds batch limit %d", shared.ErrInvalidArgument, len(trackIDs), MaxPlaylistBatch)
	}
	if _, err := p.client(token).AddTracksToPlaylist(ctx, spotify.ID(playlistID), toIDs(trackIDs)...); err != nil {
		return errors.Wrapf(err, "failed to add tracks to playlist %s", playlistID)
	}
	return nil
}

func (p *SpotifyProvider) AddLikedTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) error {
	if len(trackIDs) > MaxLikedBatch {
		return fmt.Errorf("%w: %d tracks exceeds batch limit %d", shared.ErrInvalidArgument, len(trackIDs), MaxLikedBatch)
	}
	if err := p.client(token).AddTracksToLibrary(ctx, toIDs(trackIDs)...); err != nil {
		return errors.Wrap(err, "failed to save tracks")
	}
	return nil
}

// RefreshToken exchanges refreshToken at the accounts service token endpoint.
func (p *SpotifyProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, errors.Wrap(err, "token refresh failed")
	}
	return tok, nil
}

func toIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, len(ids))
	for i, id := range ids {
		out[i] = spotify.ID(id)
	}
	return out
}

func convertPlaylist(p *spotify.SimplePlaylist) models.Playlist {
	return models.Playlist{
		ID:            string(p.ID),
		Name:          p.Name,
		Description:   p.Description,
		OwnerID:       p.Owner.ID,
		Public:        p.IsPublic,
		Collaborative: p.Collaborative,
		TrackCount:    int(p.Tracks.Total),
	}
}

func convertTrack(t *spotify.FullTrack) models.Track {
	track := models.Track{
		ID:       string(t.ID),
		URI:      string(t.URI),
		Title:    t.Name,
		Album:    t.Album.Name,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		ISRC:     t.ExternalIDs["isrc"],
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	if strings.HasPrefix(track.URI, localTrackPrefix) {
		track.IsLocal = true
		track.ID = ""
	}
	return track
}

// statusTransport turns error statuses into typed errors before the SDK decodes them:
// 429 becomes [*RateLimitError], 401 wraps [shared.ErrUnauthorized], 5xx wraps
// [shared.ErrServiceUnavailable] and other 4xx wrap [shared.ErrAPIRequest].
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	}

	msg := errorMessage(resp)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnauthorized, msg)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrServiceUnavailable, resp.StatusCode, msg)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}
}

// errorMessage reads the Web API error object ({"error": {"status", "message"}}).
func errorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	if len(body) > 0 {
		return strings.TrimSpace(string(body))
	}
	return http.StatusText(resp.StatusCode)
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unusable values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
